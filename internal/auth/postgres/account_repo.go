// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// DB is the subset of pgxpool.Pool used by the repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const accountColumns = `id, email, password_hash, role, is_active, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account. The email must already be normalized.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	return insertAccount(ctx, r.db, account)
}

// bootstrapLockKey names the transaction-scoped advisory lock that
// serializes first super admin creation.
const bootstrapLockKey int64 = 0x77617264656e

// CreateFirstSuperAdmin stores account only while no super admin exists.
// Concurrent callers queue on the advisory lock, so the existence check and
// the insert act as one step.
func (r *AccountRepository) CreateFirstSuperAdmin(ctx context.Context, account *auth.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "begin bootstrap").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockKey); err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "lock bootstrap").Wrap(err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE role = $1)`,
		string(auth.RoleSuperAdmin)).Scan(&exists)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "check super admin").Wrap(err)
	}
	if exists {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "check super admin").
			Wrap(auth.ErrSuperAdminExists)
	}

	if err := insertAccount(ctx, tx, account); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "commit bootstrap").Wrap(err)
	}
	return nil
}

func insertAccount(ctx context.Context, db execer, account *auth.Account) error {
	_, err := db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		string(account.Role),
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("email", account.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// FindByEmail retrieves an account by its normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// UpdateRole sets the role of an account.
func (r *AccountRepository) UpdateRole(ctx context.Context, id ulid.ULID, role auth.Role, at time.Time) error {
	return r.update(ctx, "update role", id,
		`UPDATE accounts SET role = $2, updated_at = $3 WHERE id = $1`,
		string(role), at)
}

// UpdateActiveStatus enables or disables an account.
func (r *AccountRepository) UpdateActiveStatus(ctx context.Context, id ulid.ULID, isActive bool, at time.Time) error {
	return r.update(ctx, "update active status", id,
		`UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`,
		isActive, at)
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, at time.Time) error {
	return r.update(ctx, "update password", id,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		passwordHash, at)
}

func (r *AccountRepository) update(ctx context.Context, op string, id ulid.ULID, sql string, value any, at time.Time) error {
	result, err := r.db.Exec(ctx, sql, id.String(), value, at)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", op).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ListFiltered returns one page of accounts, newest first, and the total
// number of accounts matching the filter.
func (r *AccountRepository) ListFiltered(ctx context.Context, filter auth.AccountFilter) ([]*auth.Account, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`+where, args...).Scan(&total); err != nil {
		return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").
			With("operation", "count accounts").
			Wrap(err)
	}

	n := len(args)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts`+where+
		` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		args...)
	if err != nil {
		return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").
			With("operation", "list accounts").
			Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").
				With("operation", "scan account").
				Wrap(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, oops.Code("ACCOUNT_LIST_FAILED").
			With("operation", "iterate accounts").
			Wrap(err)
	}
	return accounts, total, nil
}

// filterClause builds the WHERE clause for a filter. Placeholders are
// numbered from $1.
func filterClause(filter auth.AccountFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		conds = append(conds, "role = $"+strconv.Itoa(len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, "is_active = $"+strconv.Itoa(len(args)))
	}
	if filter.EmailPrefix != "" {
		args = append(args, escapeLike(filter.EmailPrefix)+"%")
		conds = append(conds, "email LIKE $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr   string
		roleStr string
		account auth.Account
	)
	if err := row.Scan(
		&idStr,
		&account.Email,
		&account.PasswordHash,
		&roleStr,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", idStr).Wrap(err)
	}
	role, err := auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CORRUPT").With("id", idStr).With("role", roleStr).Wrap(err)
	}
	account.ID = id
	account.Role = role
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
