// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Reset code alphabets. The alphanumeric set omits look-alike characters.
const (
	AlphabetNumeric      = "0123456789"
	AlphabetAlphanumeric = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Reset code defaults.
const (
	DefaultResetCodeTTL    = 15 * time.Minute
	DefaultResetCodeLength = 6
	DefaultResetAttempts   = 5
)

// ResetConfig configures ResetCodeService.
type ResetConfig struct {
	// Secret keys the digest under which codes are stored.
	Secret      []byte
	TTL         time.Duration
	Length      int
	Alphabet    string
	MaxAttempts int
	Clock       func() time.Time
}

// Validate checks the configuration and fills defaults.
func (c *ResetConfig) Validate() error {
	if len(c.Secret) < MinSecretLength {
		return oops.Code("RESET_CONFIG_INVALID").
			With("min", MinSecretLength).
			Errorf("reset secret must be at least %d bytes", MinSecretLength)
	}
	if c.TTL == 0 {
		c.TTL = DefaultResetCodeTTL
	}
	if c.Length == 0 {
		c.Length = DefaultResetCodeLength
	}
	if c.Alphabet == "" {
		c.Alphabet = AlphabetNumeric
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultResetAttempts
	}
	if c.TTL < 0 || c.Length < 4 || c.Length > 32 || c.MaxAttempts < 1 || len(c.Alphabet) < 2 {
		return oops.Code("RESET_CONFIG_INVALID").
			With("ttl", c.TTL.String()).
			With("length", c.Length).
			With("max_attempts", c.MaxAttempts).
			Errorf("reset code settings out of range")
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}

// ResetCode is the stored state of an outstanding reset code. The plaintext
// code is never stored.
type ResetCode struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	Consumed  bool
	CreatedAt time.Time
}

// MatchRequest asks a ResetCodeStore to check a presented code digest.
type MatchRequest struct {
	Email       string
	CodeHash    string
	Now         time.Time
	MaxAttempts int
	// Consume marks a matching code consumed in the same atomic step.
	Consume bool
}

// ResetCodeStore persists reset codes, at most one per email.
type ResetCodeStore interface {
	// Put stores code as the only outstanding code for its email, replacing
	// any prior one.
	Put(ctx context.Context, code *ResetCode) error

	// Match reports whether an unconsumed, unexpired code with the given
	// digest exists for the email. A mismatch counts as an attempt and the
	// code is discarded once MaxAttempts is reached. Unknown emails report
	// false without error.
	Match(ctx context.Context, req MatchRequest) (bool, error)
}

// ResetCodeService generates and checks password reset codes.
type ResetCodeService struct {
	cfg   ResetConfig
	store ResetCodeStore
}

// NewResetCodeService creates a ResetCodeService.
func NewResetCodeService(cfg ResetConfig, store ResetCodeStore) (*ResetCodeService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, oops.Errorf("reset code store is required")
	}
	return &ResetCodeService{cfg: cfg, store: store}, nil
}

// Issue generates a fresh code for email, replacing any outstanding one, and
// returns the plaintext code with its expiry.
func (s *ResetCodeService) Issue(ctx context.Context, email string) (string, time.Time, error) {
	email = NormalizeEmail(email)
	code, err := s.generate()
	if err != nil {
		return "", time.Time{}, oops.Code("RESET_ISSUE_FAILED").With("operation", "generate code").Wrap(err)
	}

	now := s.cfg.Clock().UTC()
	rc := &ResetCode{
		Email:     email,
		CodeHash:  s.digest(email, code),
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, rc); err != nil {
		return "", time.Time{}, oops.Code("RESET_ISSUE_FAILED").With("operation", "store code").Wrap(err)
	}
	resetCodesIssued.Inc()
	return code, rc.ExpiresAt, nil
}

// Verify reports whether code is the outstanding code for email without
// consuming it.
func (s *ResetCodeService) Verify(ctx context.Context, email, code string) (bool, error) {
	return s.match(ctx, email, code, false)
}

// Consume reports whether code is the outstanding code for email and, if so,
// marks it consumed so it can never match again.
func (s *ResetCodeService) Consume(ctx context.Context, email, code string) (bool, error) {
	return s.match(ctx, email, code, true)
}

func (s *ResetCodeService) match(ctx context.Context, email, code string, consume bool) (bool, error) {
	email = NormalizeEmail(email)
	code, ok := s.canonical(code)
	if email == "" || !ok {
		return false, nil
	}
	matched, err := s.store.Match(ctx, MatchRequest{
		Email:       email,
		CodeHash:    s.digest(email, code),
		Now:         s.cfg.Clock().UTC(),
		MaxAttempts: s.cfg.MaxAttempts,
		Consume:     consume,
	})
	if err != nil {
		return false, oops.Code("RESET_MATCH_FAILED").With("consume", consume).Wrap(err)
	}
	return matched, nil
}

// canonical trims and upper-cases a presented code and rejects values that
// could never have been issued.
func (s *ResetCodeService) canonical(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != s.cfg.Length {
		return "", false
	}
	for _, r := range code {
		if !strings.ContainsRune(s.cfg.Alphabet, r) {
			return "", false
		}
	}
	return code, true
}

func (s *ResetCodeService) generate() (string, error) {
	limit := big.NewInt(int64(len(s.cfg.Alphabet)))
	var b strings.Builder
	b.Grow(s.cfg.Length)
	for range s.cfg.Length {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err //nolint:wrapcheck // wrapped by caller
		}
		b.WriteByte(s.cfg.Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// digest binds a code to its email under the reset secret, so a leaked store
// can't be brute forced offline.
func (s *ResetCodeService) digest(email, code string) string {
	mac := hmac.New(sha256.New, s.cfg.Secret)
	mac.Write([]byte(email))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}
