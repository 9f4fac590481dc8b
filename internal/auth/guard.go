// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// AccessVerifier verifies access tokens. TokenService implements it.
type AccessVerifier interface {
	VerifyAccess(token string) (*Claims, error)
}

// Guard is the contract request-layer interceptors build on: Authenticate
// resolves a bearer token to a Principal, Authorize checks the principal
// against the operation table.
type Guard struct {
	verifier AccessVerifier
	policy   Policy
}

// NewGuard creates a Guard. A nil policy uses DefaultPolicy.
func NewGuard(verifier AccessVerifier, policy Policy) *Guard {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Guard{verifier: verifier, policy: policy}
}

// Authenticate parses an Authorization header value of the form
// "Bearer <token>" and verifies the token. Every failure carries
// CodeUnauthorized; the verifier's code is attached as "cause".
func (g *Guard) Authenticate(authorization string) (*Principal, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, oops.Code(CodeUnauthorized).Errorf("missing bearer token")
	}
	claims, err := g.verifier.VerifyAccess(strings.TrimSpace(token))
	if err != nil {
		return nil, oops.Code(CodeUnauthorized).
			With("cause", ErrorCode(err)).
			Errorf("invalid access token")
	}
	return &Principal{AccountID: claims.AccountID, Role: claims.Role}, nil
}

// Authorize checks principal against the requirement declared for op.
func (g *Guard) Authorize(op Operation, principal *Principal) error {
	return g.policy.Authorize(op, principal)
}

// Requirement returns the declared requirement of op.
func (g *Guard) Requirement(op Operation) (Requirement, bool) {
	req, ok := g.policy[op]
	return req, ok
}
