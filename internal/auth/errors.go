// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/wardenauth/warden/pkg/errutil"
)

// Error codes carried by failures returned from this package. The request
// layer maps each of them to a client-facing status; any other code is an
// internal failure.
const (
	CodeValidation         = "AUTH_VALIDATION"
	CodeDuplicateAccount   = "AUTH_DUPLICATE_ACCOUNT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountDisabled    = "AUTH_ACCOUNT_DISABLED"
	CodeAccountNotFound    = "AUTH_ACCOUNT_NOT_FOUND"
	CodeInvalidResetCode   = "AUTH_INVALID_RESET_CODE"
	CodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeTokenReuseDetected = "AUTH_TOKEN_REUSE_DETECTED"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeForbidden          = "AUTH_FORBIDDEN"
)

// ErrNotFound is returned by repositories and stores when a record doesn't exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by AccountRepository.Create when the email is
// already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrSuperAdminExists is returned by AccountRepository.CreateFirstSuperAdmin
// when a super admin is already stored.
var ErrSuperAdminExists = errors.New("super admin already exists")

// ErrRefreshReused is returned by RefreshTokenStore.Rotate when the presented
// token was already superseded or revoked.
var ErrRefreshReused = errors.New("refresh token already used")

// ErrorCode returns the oops code attached to err, or "" when err carries none.
func ErrorCode(err error) string {
	return errutil.Code(err)
}

// invalidCredentials is shared by every login failure that must be
// indistinguishable from the outside.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func accountNotFound(id string) error {
	return oops.Code(CodeAccountNotFound).With("account_id", id).Errorf("account not found")
}

func accountDisabled() error {
	return oops.Code(CodeAccountDisabled).Errorf("account is disabled")
}

func forbidden(format string, args ...any) error {
	return oops.Code(CodeForbidden).Errorf(format, args...)
}

func validationError(field, format string, args ...any) error {
	return oops.Code(CodeValidation).With("field", field).Errorf(format, args...)
}
