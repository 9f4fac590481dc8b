// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/httpapi"
	"github.com/wardenauth/warden/internal/logging"
	"github.com/wardenauth/warden/internal/observability"
)

func newServeCmd(opts *rootOptions, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with the metrics and health listener.
Backends are connected with retries; SIGINT or SIGTERM drains in-flight
requests before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, deps)
		},
	}
}

func newLogger(cfg *config.Config, deps *Deps) (*slog.Logger, error) {
	logger, err := logging.Setup(logging.Options{
		Service: "warden",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  deps.LogWriter,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // coded by logging
	}
	slog.SetDefault(logger)
	return logger, nil
}

// app is the wired auth core.
type app struct {
	service *auth.Service
	guard   *auth.Guard
}

func buildApp(cfg *config.Config, b *Backends, deps *Deps, logger *slog.Logger) (*app, error) {
	alphabet, err := cfg.ResetAlphabet()
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:              []byte(cfg.Token.Secret),
		Issuer:              cfg.Token.Issuer,
		Audience:            cfg.Token.Audience,
		AccessTTL:           cfg.Token.AccessTTL,
		RefreshTTL:          cfg.Token.RefreshTTL,
		Leeway:              cfg.Token.Leeway,
		ReuseRevokesAccount: cfg.Token.ReuseRevokesAccount,
	}, b.Refresh, b.Accounts, b.Events, logger)
	if err != nil {
		return nil, oops.With("operation", "build token service").Wrap(err)
	}

	resets, err := auth.NewResetCodeService(auth.ResetConfig{
		Secret:      []byte(cfg.Reset.Secret),
		TTL:         cfg.Reset.TTL,
		Length:      cfg.Reset.Length,
		Alphabet:    alphabet,
		MaxAttempts: cfg.Reset.MaxAttempts,
	}, b.Resets)
	if err != nil {
		return nil, oops.With("operation", "build reset code service").Wrap(err)
	}

	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewArgon2idHasher(auth.HasherConfig{MaxConcurrent: cfg.Hash.MaxConcurrent})
	}

	svc, err := auth.NewService(auth.ServiceDeps{
		Accounts: b.Accounts,
		Hasher:   hasher,
		Tokens:   tokens,
		Resets:   resets,
		Notifier: b.Notifier,
		Events:   b.Events,
		Logger:   logger,
	}, auth.ServiceConfig{
		MinPasswordLength:      cfg.Auth.MinPasswordLength,
		RevokeOnPasswordChange: cfg.Auth.RevokeOnPasswordChange,
		BootstrapToken:         cfg.Auth.BootstrapToken,
	})
	if err != nil {
		return nil, oops.With("operation", "build auth service").Wrap(err)
	}

	return &app{service: svc, guard: auth.NewGuard(tokens, nil)}, nil
}

// runServe runs the API until a signal arrives, ctx ends or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, deps *Deps) error {
	logger, err := newLogger(cfg, deps)
	if err != nil {
		return err
	}
	logger.Info("starting warden",
		"http_addr", cfg.HTTP.Addr,
		"accounts_store", cfg.Store.Accounts,
		"tokens_store", cfg.Store.Tokens,
	)

	backends, err := deps.Backends(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "connect backends").Wrap(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Startup.ShutdownTimeout)
		defer cancel()
		backends.Close(closeCtx, logger)
	}()

	a, err := buildApp(cfg, backends, deps, logger)
	if err != nil {
		return err
	}

	var (
		obsServer   *observability.Server
		httpMetrics *observability.HTTPMetrics
	)
	if cfg.Metrics.Enabled {
		obsServer = observability.NewServer(cfg.Metrics.Addr, logger, backends.Checks...)
		httpMetrics = obsServer.HTTPMetrics()
	}

	var rateLimit httpapi.RateLimitConfig
	if cfg.HTTP.RateLimit.Enabled {
		rateLimit = httpapi.RateLimitConfig{
			Enabled:        true,
			Capacity:       cfg.HTTP.RateLimit.Capacity,
			RefillTokens:   cfg.HTTP.RateLimit.RefillTokens,
			RefillInterval: cfg.HTTP.RateLimit.RefillInterval,
			Prefix:         cfg.Redis.Prefix + ":rl",
		}
	}

	api, err := httpapi.New(httpapi.Deps{
		Service: a.service,
		Guard:   a.guard,
		Logger:  logger,
		Metrics: httpMetrics,
		Redis:   backends.Redis,
	}, httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		BodyLimit:      cfg.HTTP.BodyLimit,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		RateLimit:      rateLimit,
	})
	if err != nil {
		return oops.With("operation", "build api server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	failures := make(chan error, 2)

	metricsAddr := ""
	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, logger, obsErrCh, failures, "observability")
		metricsAddr = obsServer.Addr()
	}

	apiErrCh, err := api.Start()
	if err != nil {
		stopServers(cfg, logger, nil, obsServer)
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, logger, apiErrCh, failures, "api")

	sigCh, stopSignals := deps.Signals()
	defer stopSignals()

	logger.Info("warden ready", "http_addr", api.Addr(), "metrics_addr", metricsAddr)
	deps.Started(api.Addr(), metricsAddr)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopServers(cfg, logger, api, obsServer)
	logger.Info("shutdown complete")

	select {
	case err := <-failures:
		return oops.Code("SERVER_FAILED").Wrap(err)
	default:
		return nil
	}
}

func stopServers(cfg *config.Config, logger *slog.Logger, api *httpapi.Server, obs *observability.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Startup.ShutdownTimeout)
	defer cancel()

	if api != nil {
		if err := api.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping api server", "error", err)
		}
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}

// monitorServerErrors forwards a server error to failures and cancels ctx.
// It exits when the channel closes or ctx ends.
func monitorServerErrors(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *slog.Logger,
	errCh <-chan error,
	failures chan<- error,
	serverName string,
) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			select {
			case failures <- oops.With("server", serverName).Wrap(err):
			default:
			}
			cancel()
		}
	case <-ctx.Done():
	}
}
