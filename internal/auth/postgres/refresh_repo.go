// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// RefreshTokenRepository implements auth.RefreshTokenStore using PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new active refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	if err := insertRefreshToken(ctx, r.db, token); err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "create").
			With("token_id", token.ID.String()).
			Wrap(err)
	}
	return nil
}

// Rotate supersedes presentedID with next in one transaction. The
// conditional update takes the row lock, so concurrent rotations of the same
// token serialize and only the first one matches.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, presentedID ulid.ULID, next *auth.RefreshToken, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").With("operation", "begin rotate").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET superseded_at = $2, replaced_by = $3
		WHERE id = $1
		  AND superseded_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > $2
	`, presentedID.String(), now, next.ID.String())
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "supersede").
			With("token_id", presentedID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return classifyRotateMiss(ctx, tx, presentedID)
	}

	if err := insertRefreshToken(ctx, tx, next); err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "insert successor").
			With("token_id", next.ID.String()).
			Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("REFRESH_STORE_FAILED").With("operation", "commit rotate").Wrap(err)
	}
	return nil
}

// classifyRotateMiss explains why the conditional update matched nothing.
func classifyRotateMiss(ctx context.Context, tx pgx.Tx, id ulid.ULID) error {
	var used bool
	err := tx.QueryRow(ctx, `
		SELECT superseded_at IS NOT NULL OR revoked_at IS NOT NULL
		FROM refresh_tokens
		WHERE id = $1
	`, id.String()).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.ErrNotFound
	}
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "classify rotate").
			With("token_id", id.String()).
			Wrap(err)
	}
	if used {
		return auth.ErrRefreshReused
	}
	return auth.ErrRefreshExpired
}

// RevokeFamily revokes every unrevoked record of a family. Family ids are
// globally unique, so the account id is not needed to find them.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, _, familyID ulid.ULID, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID.String(), now)
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "revoke family").
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAccount revokes every unrevoked record belonging to an account.
func (r *RefreshTokenRepository) RevokeAccount(ctx context.Context, accountID ulid.ULID, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`,
		accountID.String(), now)
	if err != nil {
		return oops.Code("REFRESH_STORE_FAILED").
			With("operation", "revoke account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, db execer, token *auth.RefreshToken) error {
	_, err := db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, family_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.AccountID.String(),
		token.FamilyID.String(),
		token.IssuedAt,
		token.ExpiresAt,
	)
	return err //nolint:wrapcheck // callers wrap with operation context
}

var _ auth.RefreshTokenStore = (*RefreshTokenRepository)(nil)
