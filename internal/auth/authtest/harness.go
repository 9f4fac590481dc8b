// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package authtest

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
)

// TestSecret is a signing and digest key long enough for every service.
var TestSecret = []byte("test-secret-0123456789abcdefghijklmnop")

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FastHasher returns an argon2id hasher cheap enough for tests.
func FastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.HasherConfig{Time: 1, MemoryKiB: 1024, Threads: 1})
}

// Harness wires the auth services over in-memory stores.
type Harness struct {
	Service  *auth.Service
	Tokens   *auth.TokenService
	Resets   *auth.ResetCodeService
	Guard    *auth.Guard
	Accounts *Accounts
	Refresh  *RefreshTokens
	Codes    *ResetCodes
	Notifier *Notifier
	Events   *Events
	Clock    *Clock
}

// HarnessOption adjusts the configuration of a Harness before it is built.
type HarnessOption func(*HarnessConfig)

// HarnessConfig is the configuration a Harness is built from.
type HarnessConfig struct {
	Token   auth.TokenConfig
	Reset   auth.ResetConfig
	Service auth.ServiceConfig
}

// NewHarness builds a Harness. The clock starts at the current wall time.
func NewHarness(t testing.TB, opts ...HarnessOption) *Harness {
	t.Helper()
	h := &Harness{
		Accounts: NewAccounts(),
		Refresh:  NewRefreshTokens(),
		Codes:    NewResetCodes(),
		Notifier: &Notifier{},
		Events:   &Events{},
		Clock:    NewClock(time.Now().UTC().Truncate(time.Second)),
	}

	cfg := HarnessConfig{
		Token: auth.TokenConfig{
			Secret:              TestSecret,
			Issuer:              "warden-test",
			ReuseRevokesAccount: true,
			Clock:               h.Clock.Now,
		},
		Reset: auth.ResetConfig{
			Secret: TestSecret,
			Clock:  h.Clock.Now,
		},
		Service: auth.ServiceConfig{
			RevokeOnPasswordChange: true,
			BootstrapToken:         "bootstrap-token",
			Clock:                  h.Clock.Now,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	h.Tokens, err = auth.NewTokenService(cfg.Token, h.Refresh, h.Accounts, h.Events, logger)
	require.NoError(t, err)
	h.Resets, err = auth.NewResetCodeService(cfg.Reset, h.Codes)
	require.NoError(t, err)
	h.Service, err = auth.NewService(auth.ServiceDeps{
		Accounts: h.Accounts,
		Hasher:   FastHasher(),
		Tokens:   h.Tokens,
		Resets:   h.Resets,
		Notifier: h.Notifier,
		Events:   h.Events,
		Logger:   logger,
	}, cfg.Service)
	require.NoError(t, err)
	h.Guard = auth.NewGuard(h.Tokens, nil)
	return h
}
