// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth/mongostore"
	"github.com/wardenauth/warden/internal/auth/postgres"
	"github.com/wardenauth/warden/internal/auth/redisstore"
	"github.com/wardenauth/warden/internal/config"
	"github.com/wardenauth/warden/internal/notify"
	"github.com/wardenauth/warden/internal/observability"
	"github.com/wardenauth/warden/internal/store"
)

// openBackends connects every backend the configuration selects. On error,
// whatever was already opened is closed again.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close(context.Background(), logger)
		}
	}()

	retry := func(fn func(context.Context) error) error {
		return store.Retry(ctx, cfg.Startup.ConnectAttempts, cfg.Startup.RetryBase, fn)
	}

	if cfg.Store.Accounts == config.StorePostgres || cfg.Store.Tokens == config.StorePostgres {
		if err = openPostgres(ctx, cfg, logger, b); err != nil {
			return nil, err
		}
	}

	if cfg.Store.Accounts == config.StoreMongo {
		client, connErr := mongostore.Connect(cfg.Mongo.URI, cfg.Mongo.Timeout)
		if connErr != nil {
			return nil, connErr //nolint:wrapcheck // coded by mongostore
		}
		b.OnClose("mongo", client.Disconnect)
		if err = retry(func(ctx context.Context) error { return mongostore.Ping(ctx, client) }); err != nil {
			return nil, oops.Code("MONGO_CONNECT_FAILED").With("attempts", cfg.Startup.ConnectAttempts).Wrap(err)
		}
		repo := mongostore.NewAccountRepository(client.Database(cfg.Mongo.Database))
		if err = repo.EnsureIndexes(ctx); err != nil {
			return nil, err //nolint:wrapcheck // coded by mongostore
		}
		b.Accounts = repo
		b.Checks = append(b.Checks, observability.Check{
			Name: "mongo",
			Ping: func(ctx context.Context) error { return mongostore.Ping(ctx, client) },
		})
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
	}

	if cfg.Store.Tokens == config.StoreRedis || cfg.HTTP.RateLimit.Enabled {
		if err = openRedis(ctx, cfg, logger, b, retry); err != nil {
			return nil, err
		}
	}

	if err = openNotifier(cfg, logger, b, retry); err != nil {
		return nil, err
	}
	return b, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger, b *Backends) error {
	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Startup.ConnectAttempts,
		RetryBase:       cfg.Startup.RetryBase,
	})
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	b.OnClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	b.Checks = append(b.Checks, observability.Check{Name: "postgres", Ping: pool.Ping})

	if cfg.Store.Accounts == config.StorePostgres {
		b.Accounts = postgres.NewAccountRepository(pool)
	}
	if cfg.Store.Tokens == config.StorePostgres {
		b.Refresh = postgres.NewRefreshTokenRepository(pool)
		b.Resets = postgres.NewResetCodeRepository(pool)
	}
	logger.Info("connected to postgres")
	return nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err //nolint:wrapcheck // coded by store
	}
	logger.Info("database schema up to date")
	return nil
}

// openRedis connects Redis. When it only backs the rate limiter an
// unreachable server is tolerated, since the limiter fails open.
func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger, b *Backends, retry func(func(context.Context) error) error) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	b.OnClose("redis", func(context.Context) error { return client.Close() })
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }

	if cfg.Store.Tokens != config.StoreRedis {
		if err := ping(ctx); err != nil {
			logger.Warn("redis unreachable, rate limiting will fail open", "addr", cfg.Redis.Addr, "error", err)
		}
		b.Redis = client
		return nil
	}

	if err := retry(ping); err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").
			With("addr", cfg.Redis.Addr).
			With("attempts", cfg.Startup.ConnectAttempts).
			Wrap(err)
	}
	b.Redis = client
	b.Refresh = redisstore.NewRefreshStore(client, cfg.Redis.Prefix)
	b.Resets = redisstore.NewResetStore(client, cfg.Redis.Prefix)
	b.Checks = append(b.Checks, observability.Check{Name: "redis", Ping: ping})
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	return nil
}

// openNotifier publishes to RabbitMQ when amqp.url is set and logs
// otherwise.
func openNotifier(cfg *config.Config, logger *slog.Logger, b *Backends, retry func(func(context.Context) error) error) error {
	if cfg.AMQP.URL == "" {
		n := &notify.LogNotifier{Logger: logger, RevealCodes: cfg.AMQP.RevealCodes}
		b.Notifier, b.Events = n, n
		if cfg.AMQP.RevealCodes {
			logger.Warn("reset codes will be written to the log")
		}
		return nil
	}

	var conn *amqp.Connection
	err := retry(func(context.Context) error {
		c, dialErr := amqp.Dial(cfg.AMQP.URL)
		if dialErr != nil {
			return dialErr //nolint:wrapcheck // wrapped below
		}
		conn = c
		return nil
	})
	if err != nil {
		return oops.Code("AMQP_CONNECT_FAILED").With("attempts", cfg.Startup.ConnectAttempts).Wrap(err)
	}
	b.OnClose("amqp", func(context.Context) error { return conn.Close() })

	pub, err := notify.NewAMQPPublisher(notify.ConnectionOpener(conn), logger)
	if err != nil {
		return err //nolint:wrapcheck // coded by notify
	}
	b.OnClose("amqp-channel", func(context.Context) error { return pub.Close() })
	b.Notifier, b.Events = pub, pub
	b.Checks = append(b.Checks, observability.Check{
		Name: "amqp",
		Ping: func(context.Context) error {
			if conn.IsClosed() {
				return oops.Code("AMQP_CLOSED").Errorf("amqp connection closed")
			}
			return nil
		},
	})
	logger.Info("connected to amqp")
	return nil
}
