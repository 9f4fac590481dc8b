// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package httpapi

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/observability"
)

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"request_id", v.RequestID,
				"method", v.Method,
				"path", v.URIPath,
				"route", v.RoutePath,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, "code", auth.ErrorCode(v.Error))
				if v.Status >= 500 {
					level = slog.LevelError
				}
			}
			logger.Log(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// requestID tags every request with a uuid unless the caller supplied one.
func requestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	})
}

// countRequests records the request collectors after the error handler has
// settled the status.
func countRequests(metrics *observability.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.Observe(c.Request().Method, route, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

// authenticate resolves the bearer token into a principal on the request
// context. With optional set, a missing Authorization header passes through
// anonymously; a present but invalid one is still refused.
func authenticate(guard *auth.Guard, optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" && optional {
				return next(c)
			}
			principal, err := guard.Authenticate(header)
			if err != nil {
				return err
			}
			ctx := auth.WithPrincipal(c.Request().Context(), principal)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// authorize checks the principal against the requirement of op.
func authorize(guard *auth.Guard, op auth.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, _ := auth.PrincipalFromContext(c.Request().Context())
			if err := guard.Authorize(op, principal); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// principal returns the principal attached by authenticate. Routes behind
// authenticate always have one.
func principal(c echo.Context) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return nil, oops.Code(auth.CodeUnauthorized).Errorf("authentication required")
	}
	return p, nil
}
