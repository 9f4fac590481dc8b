// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/pkg/errutil"
)

// Token defaults.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	MinSecretLength   = 32

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrRefreshExpired is returned by RefreshTokenStore.Rotate when the stored
// record is past its expiry.
var ErrRefreshExpired = errors.New("refresh token expired")

// TokenConfig holds the signing key and lifetimes. It is loaded once at
// startup and passed to NewTokenService.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration

	// ReuseRevokesAccount extends reuse handling from the presented token's
	// family to every family of the account.
	ReuseRevokesAccount bool

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Validate checks the configuration and fills defaults for zero durations.
func (c *TokenConfig) Validate() error {
	if len(c.Secret) < MinSecretLength {
		return oops.Code("TOKEN_CONFIG_INVALID").
			With("min", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.AccessTTL < 0 || c.RefreshTTL < 0 || c.Leeway < 0 {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("token durations must not be negative")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return oops.Code("TOKEN_CONFIG_INVALID").
			With("access_ttl", c.AccessTTL.String()).
			With("refresh_ttl", c.RefreshTTL.String()).
			Errorf("refresh ttl must be longer than access ttl")
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

// TokenPair is the credential pair handed to a client after login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Claims is the verified content of an access token.
type Claims struct {
	AccountID ulid.ULID
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	Role Role   `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	FamilyID string `json:"fid"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshToken is the stored validity record of an issued refresh token.
type RefreshToken struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	FamilyID  ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshTokenStore persists refresh token validity records.
type RefreshTokenStore interface {
	// Create stores a new active record.
	Create(ctx context.Context, token *RefreshToken) error

	// Rotate atomically marks presentedID superseded by next and stores next.
	// It returns ErrNotFound when no record exists, ErrRefreshReused when
	// the record was already superseded or revoked, and ErrRefreshExpired
	// when it is past expiry. Of any number of concurrent calls for the same
	// presentedID at most one succeeds.
	Rotate(ctx context.Context, presentedID ulid.ULID, next *RefreshToken, now time.Time) error

	// RevokeFamily revokes every record of a family of accountID. Unknown
	// families are not an error.
	RevokeFamily(ctx context.Context, accountID, familyID ulid.ULID, now time.Time) error

	// RevokeAccount revokes every record of every family of an account.
	RevokeAccount(ctx context.Context, accountID ulid.ULID, now time.Time) error
}

// TokenService issues, verifies and rotates tokens.
type TokenService struct {
	cfg      TokenConfig
	store    RefreshTokenStore
	accounts AccountReader
	events   SecurityEventSink
	logger   *slog.Logger
}

// NewTokenService creates a TokenService. events may be nil, in which case
// reuse detections are only logged.
func NewTokenService(
	cfg TokenConfig,
	store RefreshTokenStore,
	accounts AccountReader,
	events SecurityEventSink,
	logger *slog.Logger,
) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, oops.Errorf("refresh token store is required")
	}
	if accounts == nil {
		return nil, oops.Errorf("account reader is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &TokenService{
		cfg:      cfg,
		store:    store,
		accounts: accounts,
		events:   events,
		logger:   logger,
	}, nil
}

// Issue mints a token pair for account and starts a new refresh family.
func (s *TokenService) Issue(ctx context.Context, account *Account) (*TokenPair, error) {
	now := s.cfg.Clock()
	refresh := s.newRefreshRecord(account.ID, ulid.Make(), now)
	if err := s.store.Create(ctx, refresh); err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "store refresh token").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return s.sign(account, refresh, now)
}

// VerifyAccess checks an access token's signature, type and expiry without
// touching any stored state.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	claims := &accessClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc, s.parserOptions()...); err != nil {
		return nil, tokenError(err)
	}
	if claims.Type != tokenTypeAccess {
		return nil, oops.Code(CodeTokenInvalid).Errorf("not an access token")
	}
	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).Errorf("malformed subject")
	}
	if !claims.Role.Valid() {
		return nil, oops.Code(CodeTokenInvalid).Errorf("malformed role")
	}
	return &Claims{
		AccountID: id,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// superseded atomically; presenting it again revokes its family and fails
// with CodeTokenReuseDetected.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokenID, familyID, accountID, err := s.parseRefresh(refreshToken, true)
	if err != nil {
		rotationsTotal.WithLabelValues(outcomeFor(err)).Inc()
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.revokeFamily(ctx, accountID, familyID)
			rotationsTotal.WithLabelValues(outcomeInvalid).Inc()
			return nil, oops.Code(CodeTokenInvalid).Errorf("token subject no longer exists")
		}
		rotationsTotal.WithLabelValues(outcomeError).Inc()
		return nil, oops.Code("TOKEN_ROTATE_FAILED").
			With("operation", "load account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	if !account.IsActive {
		s.revokeFamily(ctx, accountID, familyID)
		rotationsTotal.WithLabelValues(outcomeDisabled).Inc()
		return nil, accountDisabled()
	}

	now := s.cfg.Clock()
	next := s.newRefreshRecord(account.ID, familyID, now)
	if err := s.store.Rotate(ctx, tokenID, next, now); err != nil {
		switch {
		case errors.Is(err, ErrRefreshReused), errors.Is(err, ErrNotFound):
			s.handleReuse(ctx, account.ID, familyID, tokenID)
			return nil, oops.Code(CodeTokenReuseDetected).
				With("family_id", familyID.String()).
				Errorf("refresh token reuse detected")
		case errors.Is(err, ErrRefreshExpired):
			rotationsTotal.WithLabelValues(outcomeExpired).Inc()
			return nil, oops.Code(CodeTokenExpired).Errorf("refresh token expired")
		default:
			rotationsTotal.WithLabelValues(outcomeError).Inc()
			return nil, oops.Code("TOKEN_ROTATE_FAILED").
				With("operation", "rotate refresh token").
				With("family_id", familyID.String()).
				Wrap(err)
		}
	}

	rotationsTotal.WithLabelValues(outcomeSuccess).Inc()
	return s.sign(account, next, now)
}

// Revoke invalidates the family of a refresh token. Expired tokens are
// accepted so a client can always log out; the signature is still checked.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	_, familyID, accountID, err := s.parseRefresh(refreshToken, false)
	if err != nil {
		return err
	}
	if err := s.store.RevokeFamily(ctx, accountID, familyID, s.cfg.Clock()); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("family_id", familyID.String()).
			Wrap(err)
	}
	return nil
}

// RevokeAll invalidates every refresh token of an account.
func (s *TokenService) RevokeAll(ctx context.Context, accountID ulid.ULID) error {
	if err := s.store.RevokeAccount(ctx, accountID, s.cfg.Clock()); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

func (s *TokenService) handleReuse(ctx context.Context, accountID, familyID, tokenID ulid.ULID) {
	refreshReuseTotal.Inc()
	rotationsTotal.WithLabelValues(outcomeReuse).Inc()
	s.logger.WarnContext(ctx, "refresh token reuse detected",
		"account_id", accountID.String(),
		"family_id", familyID.String(),
		"token_id", tokenID.String(),
	)

	s.revokeFamily(ctx, accountID, familyID)
	if s.cfg.ReuseRevokesAccount {
		if err := s.store.RevokeAccount(ctx, accountID, s.cfg.Clock()); err != nil {
			errutil.LogError(s.logger, "failed to revoke account tokens after reuse", err)
		}
	}

	if s.events == nil {
		return
	}
	event := SecurityEvent{
		Kind:       EventRefreshReuse,
		AccountID:  accountID.String(),
		FamilyID:   familyID.String(),
		Detail:     map[string]string{"token_id": tokenID.String()},
		OccurredAt: s.cfg.Clock().UTC(),
	}
	if err := s.events.RecordSecurityEvent(ctx, event); err != nil {
		errutil.LogError(s.logger, "failed to record security event", err)
	}
}

func (s *TokenService) revokeFamily(ctx context.Context, accountID, familyID ulid.ULID) {
	if err := s.store.RevokeFamily(ctx, accountID, familyID, s.cfg.Clock()); err != nil {
		errutil.LogError(s.logger, "failed to revoke token family", err)
	}
}

func (s *TokenService) newRefreshRecord(accountID, familyID ulid.ULID, now time.Time) *RefreshToken {
	now = now.UTC().Truncate(time.Second)
	return &RefreshToken{
		ID:        ulid.Make(),
		AccountID: accountID,
		FamilyID:  familyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}
}

func (s *TokenService) sign(account *Account, refresh *RefreshToken, now time.Time) (*TokenPair, error) {
	now = now.UTC().Truncate(time.Second)
	accessExp := now.Add(s.cfg.AccessTTL)

	access := accessClaims{
		Role: account.Role,
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  s.audience(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        ulid.Make().String(),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, oops.Code("TOKEN_SIGN_FAILED").With("type", tokenTypeAccess).Wrap(err)
	}

	rc := refreshClaims{
		FamilyID: refresh.FamilyID.String(),
		Type:     tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  s.audience(),
			IssuedAt:  jwt.NewNumericDate(refresh.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(refresh.ExpiresAt),
			ID:        refresh.ID.String(),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rc).SignedString(s.cfg.Secret)
	if err != nil {
		return nil, oops.Code("TOKEN_SIGN_FAILED").With("type", tokenTypeRefresh).Wrap(err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// parseRefresh verifies a refresh token and extracts its identifiers. With
// validate false the registered time claims are not checked.
func (s *TokenService) parseRefresh(token string, validate bool) (tokenID, familyID, accountID ulid.ULID, err error) {
	claims := &refreshClaims{}
	opts := s.parserOptions()
	if !validate {
		opts = []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		}
	}
	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc, opts...); err != nil {
		return tokenID, familyID, accountID, tokenError(err)
	}
	if claims.Type != tokenTypeRefresh {
		return tokenID, familyID, accountID, oops.Code(CodeTokenInvalid).Errorf("not a refresh token")
	}

	var parseErrs [3]error
	tokenID, parseErrs[0] = ulid.Parse(claims.ID)
	familyID, parseErrs[1] = ulid.Parse(claims.FamilyID)
	accountID, parseErrs[2] = ulid.Parse(claims.Subject)
	if err := errors.Join(parseErrs[:]...); err != nil {
		return tokenID, familyID, accountID, oops.Code(CodeTokenInvalid).Errorf("malformed refresh token claims")
	}
	return tokenID, familyID, accountID, nil
}

func (s *TokenService) keyFunc(_ *jwt.Token) (any, error) {
	return s.cfg.Secret, nil
}

func (s *TokenService) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(s.cfg.Clock),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}
	return opts
}

func (s *TokenService) audience() jwt.ClaimStrings {
	if s.cfg.Audience == "" {
		return nil
	}
	return jwt.ClaimStrings{s.cfg.Audience}
}

// tokenError maps a jwt parse failure onto the expired / invalid codes.
func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return oops.Code(CodeTokenExpired).Errorf("token expired")
	}
	return oops.Code(CodeTokenInvalid).With("reason", err.Error()).Errorf("token invalid")
}

func outcomeFor(err error) string {
	switch ErrorCode(err) {
	case CodeTokenExpired:
		return outcomeExpired
	case CodeTokenInvalid:
		return outcomeInvalid
	}
	return outcomeError
}
