// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/internal/store"
)

// Deps contains injectable dependencies for the subcommands.
// All fields with nil values use their default implementations.
type Deps struct {
	// Backends connects the stores and notification sinks.
	// Default: openBackends
	Backends func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error)

	// Hasher overrides the argon2id hasher built from the configuration.
	Hasher auth.PasswordHasher

	// Migrator opens the schema migrator for a database URL.
	// Default: store.NewMigrator
	Migrator func(databaseURL string) (Migrator, error)

	// Signals delivers shutdown signals.
	// Default: SIGINT and SIGTERM
	Signals func() (<-chan os.Signal, func())

	// Started is called once the listeners are bound.
	Started func(apiAddr, metricsAddr string)

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer
}

func (d *Deps) setDefaults() {
	if d.Backends == nil {
		d.Backends = openBackends
	}
	if d.Migrator == nil {
		d.Migrator = func(url string) (Migrator, error) {
			return store.NewMigrator(url) //nolint:wrapcheck // coded by store
		}
	}
	if d.Signals == nil {
		d.Signals = func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		}
	}
	if d.Started == nil {
		d.Started = func(string, string) {}
	}
	if d.LogWriter == nil {
		d.LogWriter = os.Stderr
	}
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// Backends are the stores and sinks the service runs on.
type Backends struct {
	Accounts auth.AccountRepository
	Refresh  auth.RefreshTokenStore
	Resets   auth.ResetCodeStore
	Notifier auth.ResetNotifier
	Events   auth.SecurityEventSink

	// Redis backs the rate limiter. Nil disables it.
	Redis redis.UniversalClient

	// Checks feed the readiness endpoint.
	Checks []observability.Check

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func(context.Context) error
}

// OnClose registers fn to run on Close. Closers run in reverse order.
func (b *Backends) OnClose(name string, fn func(context.Context) error) {
	b.closers = append(b.closers, namedCloser{name: name, fn: fn})
}

// Close releases every backend. Failures are logged.
func (b *Backends) Close(ctx context.Context, logger *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.fn(ctx); err != nil {
			logger.Warn("error closing backend", "backend", c.name, "error", err)
		}
	}
	b.closers = nil
}
