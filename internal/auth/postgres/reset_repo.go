// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// ResetCodeRepository implements auth.ResetCodeStore using PostgreSQL. Each
// email owns at most one row.
type ResetCodeRepository struct {
	db DB
}

// NewResetCodeRepository creates a new ResetCodeRepository.
func NewResetCodeRepository(db DB) *ResetCodeRepository {
	return &ResetCodeRepository{db: db}
}

// Put stores code, replacing any outstanding code for the same email.
func (r *ResetCodeRepository) Put(ctx context.Context, code *auth.ResetCode) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reset_codes (email, code_hash, expires_at, attempts, consumed_at, created_at)
		VALUES ($1, $2, $3, 0, NULL, $4)
		ON CONFLICT (email) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			consumed_at = NULL,
			created_at = EXCLUDED.created_at
	`, code.Email, code.CodeHash, code.ExpiresAt, code.CreatedAt)
	if err != nil {
		return oops.Code("RESET_STORE_FAILED").
			With("operation", "put").
			Wrap(err)
	}
	return nil
}

// Match checks a presented digest while holding the row lock.
func (r *ResetCodeRepository) Match(ctx context.Context, req auth.MatchRequest) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, oops.Code("RESET_STORE_FAILED").With("operation", "begin match").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var (
		digest    string
		expiresAt time.Time
		attempts  int
		consumed  bool
	)
	err = tx.QueryRow(ctx, `
		SELECT code_hash, expires_at, attempts, consumed_at IS NOT NULL
		FROM reset_codes
		WHERE email = $1
		FOR UPDATE
	`, req.Email).Scan(&digest, &expiresAt, &attempts, &consumed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("RESET_STORE_FAILED").With("operation", "select code").Wrap(err)
	}

	matched := false
	switch {
	case consumed || !req.Now.Before(expiresAt):
		_, err = tx.Exec(ctx, `DELETE FROM reset_codes WHERE email = $1`, req.Email)
	case subtle.ConstantTimeCompare([]byte(digest), []byte(req.CodeHash)) != 1:
		attempts++
		if attempts >= req.MaxAttempts {
			_, err = tx.Exec(ctx, `DELETE FROM reset_codes WHERE email = $1`, req.Email)
		} else {
			_, err = tx.Exec(ctx, `UPDATE reset_codes SET attempts = $2 WHERE email = $1`, req.Email, attempts)
		}
	default:
		matched = true
		if req.Consume {
			_, err = tx.Exec(ctx, `UPDATE reset_codes SET consumed_at = $2 WHERE email = $1`, req.Email, req.Now)
		}
	}
	if err != nil {
		return false, oops.Code("RESET_STORE_FAILED").With("operation", "update code").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, oops.Code("RESET_STORE_FAILED").With("operation", "commit match").Wrap(err)
	}
	return matched, nil
}

var _ auth.ResetCodeStore = (*ResetCodeRepository)(nil)
