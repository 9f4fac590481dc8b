// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth/authtest"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/pkg/errutil"
)

const testTokenSecret = "cmd-test-secret-0123456789abcdefghij"

// TestMain points XDG_CONFIG_HOME at an empty directory so a developer's own
// config file is never picked up.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "warden-xdg")
	if err != nil {
		panic(err)
	}
	_ = os.Setenv("XDG_CONFIG_HOME", dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// memoryBackends serves accounts and tokens from memory, with miniredis
// behind the rate limiter.
func memoryBackends(t *testing.T) (*Backends, *authtest.Accounts) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	accounts := authtest.NewAccounts()

	b := &Backends{
		Accounts: accounts,
		Refresh:  authtest.NewRefreshTokens(),
		Resets:   authtest.NewResetCodes(),
		Notifier: &authtest.Notifier{},
		Events:   &authtest.Events{},
		Redis:    client,
		Checks: []observability.Check{{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}},
	}
	b.OnClose("redis", func(context.Context) error { return client.Close() })
	return b, accounts
}

func testDeps(b *Backends) *Deps {
	return &Deps{
		Backends: func(context.Context, *config.Config, *slog.Logger) (*Backends, error) {
			return b, nil
		},
		Hasher:    authtest.FastHasher(),
		LogWriter: io.Discard,
	}
}

func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	out, err := execute(t, &Deps{}, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "create-super-admin", "config", "version"} {
		assert.Contains(t, out, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_SharedFlags(t *testing.T) {
	out, err := execute(t, &Deps{}, "serve", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--config", "--env-file", "--http-addr", "--database-url", "--log-level"} {
		assert.Contains(t, out, flag)
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, &Deps{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "warden dev")
}

func TestConfigCommand_PrintsRedactedYAML(t *testing.T) {
	t.Setenv("WARDEN_TOKEN__SECRET", testTokenSecret)

	out, err := execute(t, &Deps{}, "config", "--http-addr", ":9999")
	require.NoError(t, err)

	assert.Contains(t, out, ":9999")
	assert.Contains(t, out, "access_ttl: 15m0s")
	assert.NotContains(t, out, testTokenSecret)
}

func TestConfigCommand_ReportsInvalidConfig(t *testing.T) {
	t.Setenv("WARDEN_TOKEN__SECRET", "")

	out, err := execute(t, &Deps{}, "config")
	require.Error(t, err)
	assert.Contains(t, out, "token:")
	assert.Equal(t, "CONFIG_INVALID", errutil.Code(err))
}

func TestConfigCommand_FindsXDGConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	t.Setenv("WARDEN_TOKEN__SECRET", testTokenSecret)
	require.NoError(t, os.MkdirAll(filepath.Join(base, "warden"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(base, "warden", "config.yaml"),
		[]byte("token:\n  issuer: from-xdg\n"), 0o600))

	out, err := execute(t, &Deps{}, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "issuer: from-xdg")

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("token:\n  issuer: explicit\n"), 0o600))
	out, err = execute(t, &Deps{}, "config", "--config", explicit)
	require.NoError(t, err)
	assert.Contains(t, out, "issuer: explicit")
}
