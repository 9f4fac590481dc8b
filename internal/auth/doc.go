// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package auth provides the credential and authorization engine of Warden.
//
// # Domain Types
//
// Accounts are created with NewAccount after the email has been normalized
// with ValidateEmail. The password hash never leaves the package boundary in
// a projection: handlers receive AccountView values only.
//
// # Services
//
//   - Argon2idHasher - argon2id hashing with bcrypt verification for upgrades
//   - TokenService - HS256 access tokens and single-use rotating refresh tokens
//   - ResetCodeService - short-lived, attempt-limited password reset codes
//   - Service - the operations exposed to clients, built on the three above
//   - Guard - bearer authentication and the operation requirement table
//
// Storage is abstracted by AccountRepository, RefreshTokenStore and
// ResetCodeStore. Implementations live in the postgres, redis and mongo
// subpackages.
//
// # Errors
//
// Failures carry an oops code. The Code* constants are the client-facing
// ones; ErrorCode extracts the code from any returned error.
package auth
