// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Email constraints.
const (
	MaxEmailLength = 254
)

// Account is a registered identity.
type Account struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string `json:"-"`
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountView is the public projection of an Account. It never carries the
// password hash.
type AccountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// View returns the projection of a.
func (a *Account) View() *AccountView {
	return &AccountView{
		ID:        a.ID.String(),
		Email:     a.Email,
		Role:      a.Role,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// NewAccount builds an active account with a fresh ID. The email must already
// be normalized.
func NewAccount(email, passwordHash string, role Role, now time.Time) *Account {
	now = now.UTC()
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes and validates an email address. The normalized
// form is returned on success.
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", validationError("email", "email is required")
	}
	if len(normalized) > MaxEmailLength {
		return "", validationError("email", "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", validationError("email", "email is not a valid address")
	}
	return normalized, nil
}

// AccountFilter is the enumerated set of listing filters a repository must
// support. Nil pointers mean "any".
type AccountFilter struct {
	Role        *Role
	IsActive    *bool
	EmailPrefix string
	Offset      int
	Limit       int
}

// AccountReader is the read side of AccountRepository used by the token service.
type AccountReader interface {
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)
}

// AccountRepository persists accounts. Lookups return ErrNotFound when the
// account doesn't exist and Create returns ErrDuplicateEmail when the email
// is taken. Update methods return ErrNotFound when no account matched.
type AccountRepository interface {
	AccountReader
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	// CreateFirstSuperAdmin stores account only if no super admin exists,
	// failing with ErrSuperAdminExists otherwise. The check and the insert
	// are atomic across concurrent callers.
	CreateFirstSuperAdmin(ctx context.Context, account *Account) error
	UpdateRole(ctx context.Context, id ulid.ULID, role Role, at time.Time) error
	UpdateActiveStatus(ctx context.Context, id ulid.ULID, isActive bool, at time.Time) error
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error
	ListFiltered(ctx context.Context, filter AccountFilter) ([]*Account, int, error)
}

// ParseAccountID parses a textual account ID, failing validation on
// malformed input.
func ParseAccountID(s string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(strings.TrimSpace(s))
	if err != nil {
		return ulid.ULID{}, validationError("userId", "malformed account id")
	}
	return id, nil
}
