// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/pkg/errutil"
)

// Listing bounds for GetAllUsers.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// dummyPasswordHash is used when an account doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Tokens is the part of TokenService the orchestration layer uses.
type Tokens interface {
	Issue(ctx context.Context, account *Account) (*TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, accountID ulid.ULID) error
}

// ResetCodes is the part of ResetCodeService the orchestration layer uses.
type ResetCodes interface {
	Issue(ctx context.Context, email string) (string, time.Time, error)
	Verify(ctx context.Context, email, code string) (bool, error)
	Consume(ctx context.Context, email, code string) (bool, error)
}

// ServiceDeps are the collaborators of Service. Events is optional.
type ServiceDeps struct {
	Accounts AccountRepository
	Hasher   PasswordHasher
	Tokens   Tokens
	Resets   ResetCodes
	Notifier ResetNotifier
	Events   SecurityEventSink
	Logger   *slog.Logger
}

// ServiceConfig holds the policy knobs of Service.
type ServiceConfig struct {
	// MinPasswordLength is enforced on signup, change and reset. Empty
	// passwords are always rejected.
	MinPasswordLength int

	// RevokeOnPasswordChange revokes every refresh token of an account
	// after ChangePassword.
	RevokeOnPasswordChange bool

	// BootstrapToken admits CreateSuperAdmin while no SUPER_ADMIN exists.
	// Empty disables the bootstrap path.
	BootstrapToken string

	Clock func() time.Time
}

// Service orchestrates account, credential and authorization operations.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	tokens   Tokens
	resets   ResetCodes
	notifier ResetNotifier
	events   SecurityEventSink
	logger   *slog.Logger
	cfg      ServiceConfig
}

// NewService creates a Service.
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Errorf("accounts repository is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("token service is required")
	case deps.Resets == nil:
		return nil, oops.Errorf("reset code service is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("reset notifier is required")
	case deps.Logger == nil:
		return nil, oops.Errorf("logger is required")
	}
	if cfg.MinPasswordLength < 0 || cfg.MinPasswordLength > MaxPasswordBytes {
		return nil, oops.Code("SERVICE_CONFIG_INVALID").
			With("min_password_length", cfg.MinPasswordLength).
			Errorf("min password length out of range")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		resets:   deps.Resets,
		notifier: deps.Notifier,
		events:   deps.Events,
		logger:   deps.Logger,
		cfg:      cfg,
	}, nil
}

// SignUpInput carries the fields accepted at signup. There is no role field:
// self-registered accounts are always USER.
type SignUpInput struct {
	Email    string
	Password string
}

// SignUp registers an active USER account.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*AccountView, error) {
	return s.createAccount(ctx, in.Email, in.Password, RoleUser, s.accounts.Create)
}

// Login authenticates an account and issues a token pair.
// Unknown accounts and wrong passwords fail identically, and the disabled
// check runs only after the credentials matched.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	account, lookupErr := s.accounts.FindByEmail(ctx, NormalizeEmail(email))

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			loginsTotal.WithLabelValues(outcomeError).Inc()
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "find account by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = account.PasswordHash
		exists = true
	}

	// Always verify, even against the dummy hash, to keep timing uniform.
	valid, err := s.hasher.Verify(ctx, password, targetHash)
	if err != nil {
		loginsTotal.WithLabelValues(outcomeError).Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !exists || !valid {
		loginsTotal.WithLabelValues(outcomeInvalid).Inc()
		return nil, invalidCredentials()
	}

	if !account.IsActive {
		loginsTotal.WithLabelValues(outcomeDisabled).Inc()
		return nil, accountDisabled()
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}

	pair, err := s.tokens.Issue(ctx, account)
	if err != nil {
		loginsTotal.WithLabelValues(outcomeError).Inc()
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue tokens").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	loginsTotal.WithLabelValues(outcomeSuccess).Inc()
	return pair, nil
}

// upgradeHash re-hashes a legacy or weak hash. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	newHash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		errutil.LogError(s.logger, "failed to upgrade password hash", err)
		return
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, newHash, s.now()); err != nil {
		errutil.LogError(s.logger, "failed to store upgraded password hash", err)
		return
	}
	account.PasswordHash = newHash
}

// RefreshTokens rotates a refresh token. Reuse, expiry and invalid tokens
// fail with distinct codes.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err //nolint:wrapcheck // token codes are part of this API
	}
	return pair, nil
}

// Logout revokes the family of a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken) //nolint:wrapcheck // token codes are part of this API
}

// ChangePassword replaces the password of an authenticated account after
// checking the old one.
func (s *Service) ChangePassword(ctx context.Context, accountID ulid.ULID, oldPassword, newPassword string) error {
	account, err := s.findAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return accountDisabled()
	}

	valid, err := s.hasher.Verify(ctx, oldPassword, account.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !valid {
		return invalidCredentials()
	}

	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	// Rotation never re-checks the password, so sessions must be gone
	// before the new hash is stored.
	if s.cfg.RevokeOnPasswordChange {
		if err := s.tokens.RevokeAll(ctx, account.ID); err != nil {
			return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
				With("operation", "revoke refresh tokens").
				With("account_id", account.ID.String()).
				Wrap(err)
		}
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return accountNotFound(account.ID.String())
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.emit(ctx, SecurityEvent{Kind: EventPasswordChanged, AccountID: account.ID.String()})
	return nil
}

// ForgotPassword issues and dispatches a reset code when an active account
// exists for email. The result is the same whether or not it does.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return err
	}

	account, err := s.accounts.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}
	if !account.IsActive {
		return nil
	}

	// Failures past this point depend on the account existing, so they are
	// logged and never surfaced.
	code, expiresAt, err := s.resets.Issue(ctx, normalized)
	if err != nil {
		errutil.LogError(s.logger, "failed to issue reset code", err)
		return nil
	}
	n := ResetNotification{Email: normalized, Code: code, ExpiresAt: expiresAt}
	if err := s.notifier.SendResetCode(ctx, n); err != nil {
		errutil.LogError(s.logger, "failed to dispatch reset code", err)
	}
	return nil
}

// VerifyResetCode checks a reset code without consuming it.
func (s *Service) VerifyResetCode(ctx context.Context, email, code string) (bool, error) {
	return s.resets.Verify(ctx, email, code) //nolint:wrapcheck // already coded
}

// ResetPassword consumes a reset code and sets a new password. Every refresh
// token of the account is revoked before the new hash is stored; if that
// fails the reset fails and the password is unchanged.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	// Hash first so a hashing failure doesn't burn the code.
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}

	ok, err := s.resets.Consume(ctx, email, code)
	if err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "consume code").Wrap(err)
	}
	if !ok {
		return oops.Code(CodeInvalidResetCode).Errorf("invalid reset code")
	}

	account, err := s.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidResetCode).Errorf("invalid reset code")
		}
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "find account by email").Wrap(err)
	}
	if err := s.tokens.RevokeAll(ctx, account.ID); err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "revoke refresh tokens").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash, s.now()); err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.emit(ctx, SecurityEvent{Kind: EventPasswordReset, AccountID: account.ID.String()})
	return nil
}

// UpdateUserRole assigns newRole to the target account. Role requirements
// on the actor are enforced by the guard; an actor may never change its own
// role.
func (s *Service) UpdateUserRole(ctx context.Context, actor Principal, targetID ulid.ULID, newRole Role) (*AccountView, error) {
	if !newRole.Valid() {
		return nil, validationError("role", "unknown role %q", string(newRole))
	}
	if actor.AccountID == targetID {
		return nil, forbidden("cannot change own role")
	}
	if _, err := s.requireActiveActor(ctx, actor); err != nil {
		return nil, err
	}

	target, err := s.findAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == newRole {
		return target.View(), nil
	}

	now := s.now()
	if err := s.accounts.UpdateRole(ctx, target.ID, newRole, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, accountNotFound(target.ID.String())
		}
		return nil, oops.Code("AUTH_UPDATE_ROLE_FAILED").
			With("account_id", target.ID.String()).
			Wrap(err)
	}
	previous := target.Role
	target.Role = newRole
	target.UpdatedAt = now

	// Outstanding access tokens carry the old role until they expire; the
	// refresh tokens must not mint more of them.
	s.revokeAll(ctx, target.ID)
	s.emit(ctx, SecurityEvent{
		Kind:      EventRoleChanged,
		AccountID: target.ID.String(),
		ActorID:   actor.AccountID.String(),
		Detail:    map[string]string{"from": string(previous), "to": string(newRole)},
	})
	return target.View(), nil
}

// CreateSuperAdminInput carries a super admin creation request.
type CreateSuperAdminInput struct {
	Email    string
	Password string

	// Actor is the verified caller, if any.
	Actor *Principal
	// BootstrapToken is compared against ServiceConfig.BootstrapToken.
	BootstrapToken string
	// Trusted marks operator invocations that bypass the request gate.
	Trusted bool
}

// CreateSuperAdmin creates a SUPER_ADMIN account. The caller must be an
// active SUPER_ADMIN, an operator (Trusted), or present the bootstrap token
// while no SUPER_ADMIN exists yet.
func (s *Service) CreateSuperAdmin(ctx context.Context, in CreateSuperAdminInput) (*AccountView, error) {
	bootstrap, err := s.authorizeSuperAdminCreation(ctx, in)
	if err != nil {
		return nil, err
	}
	store := s.accounts.Create
	if bootstrap {
		// The pre-check above only fails fast; the repository decides
		// between concurrent bootstrap requests.
		store = s.accounts.CreateFirstSuperAdmin
	}
	view, err := s.createAccount(ctx, in.Email, in.Password, RoleSuperAdmin, store)
	if errors.Is(err, ErrSuperAdminExists) {
		return nil, forbidden("bootstrap already completed")
	}
	if err != nil {
		return nil, err
	}
	event := SecurityEvent{Kind: EventSuperAdminCreated, AccountID: view.ID}
	if in.Actor != nil {
		event.ActorID = in.Actor.AccountID.String()
	}
	s.emit(ctx, event)
	return view, nil
}

// authorizeSuperAdminCreation reports whether the request is allowed and
// whether it is allowed only as the one-time bootstrap.
func (s *Service) authorizeSuperAdminCreation(ctx context.Context, in CreateSuperAdminInput) (bool, error) {
	if in.Trusted {
		return false, nil
	}
	if in.Actor != nil {
		actor, err := s.requireActiveActor(ctx, *in.Actor)
		if err != nil {
			return false, err
		}
		if actor.Role == RoleSuperAdmin {
			return false, nil
		}
	}
	if in.BootstrapToken != "" && s.cfg.BootstrapToken != "" &&
		subtle.ConstantTimeCompare([]byte(in.BootstrapToken), []byte(s.cfg.BootstrapToken)) == 1 {
		exists, err := s.superAdminExists(ctx)
		if err != nil {
			return false, err
		}
		if exists {
			return false, forbidden("bootstrap already completed")
		}
		return true, nil
	}
	return false, forbidden("super admin creation requires a super admin or bootstrap token")
}

func (s *Service) superAdminExists(ctx context.Context) (bool, error) {
	role := RoleSuperAdmin
	_, total, err := s.accounts.ListFiltered(ctx, AccountFilter{Role: &role, Limit: 1})
	if err != nil {
		return false, oops.Code("AUTH_CREATE_SUPER_ADMIN_FAILED").
			With("operation", "count super admins").
			Wrap(err)
	}
	return total > 0, nil
}

// UpdateAccountStatus activates or deactivates the target account. The
// acting role is taken from the stored actor account, never from input, and
// must be allowed to manage the target's role. Deactivation revokes the
// target's refresh tokens.
func (s *Service) UpdateAccountStatus(ctx context.Context, actor Principal, targetID ulid.ULID, isActive bool) (*AccountView, error) {
	if actor.AccountID == targetID {
		return nil, forbidden("cannot change own account status")
	}
	actorAccount, err := s.requireActiveActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	target, err := s.findAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !CanManageStatus(actorAccount.Role, target.Role) {
		return nil, oops.Code(CodeForbidden).
			With("actor_role", string(actorAccount.Role)).
			With("target_role", string(target.Role)).
			Errorf("insufficient role to change this account's status")
	}
	if target.IsActive == isActive {
		return target.View(), nil
	}

	now := s.now()
	if err := s.accounts.UpdateActiveStatus(ctx, target.ID, isActive, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, accountNotFound(target.ID.String())
		}
		return nil, oops.Code("AUTH_UPDATE_STATUS_FAILED").
			With("account_id", target.ID.String()).
			Wrap(err)
	}
	target.IsActive = isActive
	target.UpdatedAt = now

	if !isActive {
		s.revokeAll(ctx, target.ID)
	}
	s.emit(ctx, SecurityEvent{
		Kind:      EventStatusChanged,
		AccountID: target.ID.String(),
		ActorID:   actor.AccountID.String(),
		Detail:    map[string]string{"is_active": boolString(isActive)},
	})
	return target.View(), nil
}

// FindUserByID returns the projection of an account.
func (s *Service) FindUserByID(ctx context.Context, id ulid.ULID) (*AccountView, error) {
	account, err := s.findAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.View(), nil
}

// UserFilter is the enumerated listing filter accepted by GetAllUsers.
// Page is 1-based.
type UserFilter struct {
	Role        *Role
	IsActive    *bool
	EmailPrefix string
	Page        int
	Limit       int
}

// AccountPage is one page of account projections.
type AccountPage struct {
	Items []*AccountView `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// GetAllUsers lists accounts, newest first.
func (s *Service) GetAllUsers(ctx context.Context, filter UserFilter) (*AccountPage, error) {
	page, limit := filter.Page, filter.Limit
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page < 1 {
		return nil, validationError("page", "page must be at least 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, validationError("limit", "limit must be between 1 and %d", MaxPageLimit)
	}
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, validationError("role", "unknown role %q", string(*filter.Role))
	}
	prefix := NormalizeEmail(filter.EmailPrefix)
	if len(prefix) > MaxEmailLength {
		return nil, validationError("emailPrefix", "email prefix too long")
	}

	accounts, total, err := s.accounts.ListFiltered(ctx, AccountFilter{
		Role:        filter.Role,
		IsActive:    filter.IsActive,
		EmailPrefix: prefix,
		Offset:      (page - 1) * limit,
		Limit:       limit,
	})
	if err != nil {
		return nil, oops.Code("AUTH_LIST_USERS_FAILED").Wrap(err)
	}

	items := make([]*AccountView, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, a.View())
	}
	return &AccountPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) createAccount(
	ctx context.Context,
	email, password string,
	role Role,
	store func(context.Context, *Account) error,
) (*AccountView, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}

	if _, err := s.accounts.FindByEmail(ctx, normalized); err == nil {
		return nil, duplicateAccount()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "find account by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	account := NewAccount(normalized, hash, role, s.now())
	if err := store(ctx, account); err != nil {
		// The pre-check can race with a concurrent signup; the unique index decides.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateAccount()
		}
		if errors.Is(err, ErrSuperAdminExists) {
			return nil, err
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create account").
			Wrap(err)
	}
	return account.View(), nil
}

func (s *Service) checkPassword(password string) error {
	if password == "" {
		return validationError("password", "password is required")
	}
	if len(password) < s.cfg.MinPasswordLength {
		return validationError("password", "password must be at least %d characters", s.cfg.MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return validationError("password", "password must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

func (s *Service) findAccount(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, accountNotFound(id.String())
		}
		return nil, oops.Code("AUTH_ACCOUNT_LOOKUP_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// CheckActor refuses a principal whose account was removed, deactivated or
// given another role after the access token was issued. Read-only
// privileged operations call it before serving.
func (s *Service) CheckActor(ctx context.Context, actor Principal) error {
	_, err := s.requireActiveActor(ctx, actor)
	return err
}

// requireActiveActor re-loads the caller of a privileged operation. A
// deactivated account or one whose role changed since its token was issued
// is refused.
func (s *Service) requireActiveActor(ctx context.Context, actor Principal) (*Account, error) {
	account, err := s.accounts.FindByID(ctx, actor.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUnauthorized).Errorf("caller no longer exists")
		}
		return nil, oops.Code("AUTH_ACCOUNT_LOOKUP_FAILED").
			With("account_id", actor.AccountID.String()).
			Wrap(err)
	}
	if !account.IsActive {
		return nil, accountDisabled()
	}
	if account.Role != actor.Role {
		return nil, forbidden("caller role changed, re-authenticate")
	}
	return account, nil
}

// revokeAll logs failures. Callers rely on rotation re-reading the account's
// role and status, so a missed revocation cannot outlive the change.
func (s *Service) revokeAll(ctx context.Context, accountID ulid.ULID) {
	if err := s.tokens.RevokeAll(ctx, accountID); err != nil {
		errutil.LogError(s.logger, "failed to revoke refresh tokens", err)
	}
}

func (s *Service) emit(ctx context.Context, event SecurityEvent) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.events.RecordSecurityEvent(ctx, event); err != nil {
		errutil.LogError(s.logger, "failed to record security event", err)
	}
}

func (s *Service) now() time.Time {
	return s.cfg.Clock().UTC()
}

func duplicateAccount() error {
	return oops.Code(CodeDuplicateAccount).Errorf("an account with this email already exists")
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
