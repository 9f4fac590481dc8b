// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package httpapi

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RateLimitConfig tunes the token bucket placed on credential endpoints.
type RateLimitConfig struct {
	Enabled bool
	// Capacity is the bucket size, i.e. the allowed burst.
	Capacity int
	// RefillTokens are added every RefillInterval, up to Capacity.
	RefillTokens   int
	RefillInterval time.Duration
	// Prefix namespaces the bucket keys.
	Prefix string
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Capacity <= 0 {
		c.Capacity = 10
	}
	if c.RefillTokens <= 0 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = 6 * time.Second
	}
	if c.Prefix == "" {
		c.Prefix = "warden:rl"
	}
	return c
}

// bucketScript refills and takes one token atomically. It returns
// {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

local elapsed = now_ms - last_refill
if elapsed < 0 then elapsed = 0 end
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
  tokens = math.min(capacity, tokens + intervals * refill_tokens)
  last_refill = last_refill + intervals * interval_ms
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = interval_ms - (now_ms - last_refill)
  if retry_after_ms < 0 then retry_after_ms = 0 end
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
local full_ms = math.ceil(capacity / refill_tokens) * interval_ms
redis.call('PEXPIRE', key, full_ms + interval_ms)
return {allowed, tokens, retry_after_ms}
`)

// Decision is the outcome of one bucket draw.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter is a Redis-backed token bucket shared by every API replica.
type RateLimiter struct {
	client redis.UniversalClient
	cfg    RateLimitConfig
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter. Zero config fields take defaults.
func NewRateLimiter(client redis.UniversalClient, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, cfg: cfg.withDefaults(), now: time.Now}
}

// Allow draws one token from the bucket identified by key.
func (l *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := bucketScript.Run(ctx, l.client, []string{l.cfg.Prefix + ":" + key},
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, oops.Code("RATE_LIMIT_FAILED").With("key", key).Wrap(err)
	}
	if len(res) != 3 {
		return Decision{}, oops.Code("RATE_LIMIT_FAILED").With("key", key).Errorf("unexpected script result %v", res)
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Middleware limits requests per client IP and route. Redis failures let the
// request through.
func (l *RateLimiter) Middleware(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := ip + ":" + c.Request().Method + " " + c.Path()

			decision, err := l.Allow(c.Request().Context(), key)
			if err != nil {
				logger.WarnContext(c.Request().Context(), "rate limiter unavailable", "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			if !decision.Allowed {
				secs := int(math.Ceil(decision.RetryAfter.Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				return oops.Code(CodeRateLimited).
					With("ip", ip).
					With("route", c.Path()).
					Errorf("too many requests, retry in %d seconds", secs)
			}
			return next(c)
		}
	}
}
