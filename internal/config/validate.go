// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package config

import (
	"strings"

	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/httpapi"
	"github.com/wardenauth/warden/internal/logging"
)

// Reset code alphabets accepted in reset.alphabet.
const (
	AlphabetNumeric      = "numeric"
	AlphabetAlphanumeric = "alphanumeric"
)

func invalid(field string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return invalid("http.addr", "http address is required")
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		return invalid("http", "http timeouts must not be negative")
	}
	for _, proxy := range c.HTTP.TrustedProxies {
		if _, err := httpapi.ParseTrustedProxy(proxy); err != nil {
			return invalid("http.trusted_proxies", "trusted proxy %q is not an address or CIDR range", proxy)
		}
	}
	if rl := c.HTTP.RateLimit; rl.Enabled {
		if rl.Capacity <= 0 || rl.RefillTokens <= 0 || rl.RefillInterval <= 0 {
			return invalid("http.rate_limit", "rate limit capacity, refill tokens and refill interval must be positive")
		}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return invalid("metrics.addr", "metrics address is required when metrics are enabled")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log.format", "log format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}

	switch c.Store.Accounts {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database url is required for the postgres account store")
		}
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return invalid("mongo", "mongo uri and database are required for the mongo account store")
		}
	default:
		return invalid("store.accounts", "account store must be postgres or mongo, got %q", c.Store.Accounts)
	}
	switch c.Store.Tokens {
	case StoreRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "redis address is required for the redis token store")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database url is required for the postgres token store")
		}
	default:
		return invalid("store.tokens", "token store must be redis or postgres, got %q", c.Store.Tokens)
	}

	if len(c.Token.Secret) < auth.MinSecretLength {
		return invalid("token.secret", "token secret must be at least %d bytes", auth.MinSecretLength)
	}
	if len(c.Reset.Secret) < auth.MinSecretLength {
		return invalid("reset.secret", "reset secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Token.AccessTTL <= 0 {
		return invalid("token.access_ttl", "access ttl must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return invalid("token.refresh_ttl", "refresh ttl must be longer than access ttl")
	}
	if c.Token.Leeway < 0 {
		return invalid("token.leeway", "leeway must not be negative")
	}

	if _, err := c.ResetAlphabet(); err != nil {
		return err
	}
	if c.Reset.TTL <= 0 {
		return invalid("reset.ttl", "reset code ttl must be positive")
	}
	if c.Reset.Length < 4 || c.Reset.Length > 32 {
		return invalid("reset.length", "reset code length must be between 4 and 32")
	}
	if c.Reset.MaxAttempts < 1 {
		return invalid("reset.max_attempts", "reset max attempts must be at least 1")
	}

	if c.Auth.MinPasswordLength < 0 || c.Auth.MinPasswordLength > auth.MaxPasswordBytes {
		return invalid("auth.min_password_length", "min password length out of range")
	}
	if c.Hash.MaxConcurrent < 0 {
		return invalid("hash.max_concurrent", "max concurrent hashes must not be negative")
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "max connections must not be negative")
	}
	return nil
}

// ResetAlphabet returns the character set named by reset.alphabet.
func (c *Config) ResetAlphabet() (string, error) {
	switch strings.ToLower(c.Reset.Alphabet) {
	case "", AlphabetNumeric:
		return auth.AlphabetNumeric, nil
	case AlphabetAlphanumeric:
		return auth.AlphabetAlphanumeric, nil
	default:
		return "", invalid("reset.alphabet", "reset alphabet must be numeric or alphanumeric, got %q", c.Reset.Alphabet)
	}
}
