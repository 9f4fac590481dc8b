// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package httpapi exposes the auth service over HTTP with echo. Routes live
// under /auth; errors are rendered as {"error": {"code", "message"}} with the
// status derived from the error code.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/internal/observability"
)

// Config tunes the HTTP layer.
type Config struct {
	Addr string
	// BodyLimit uses echo's size notation, e.g. "64K". Empty means 64K.
	BodyLimit string
	// CORSOrigins lists the origins allowed to call the API. Empty disables
	// CORS headers entirely.
	CORSOrigins []string
	// TrustedProxies lists the proxy addresses or CIDR ranges whose
	// X-Forwarded-For header names the client. Empty means the peer
	// address is the client and forwarding headers are ignored.
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimit      RateLimitConfig
}

// Deps are the collaborators of the HTTP layer. Metrics and Redis are
// optional; without Redis the rate limiter is off.
type Deps struct {
	Service AuthService
	Guard   *auth.Guard
	Logger  *slog.Logger
	Metrics *observability.HTTPMetrics
	Redis   redis.UniversalClient
	Clock   func() time.Time
}

// Server is the public API listener.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	echo       *echo.Echo
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// New builds the echo router with every route and middleware.
func New(deps Deps, cfg Config) (*Server, error) {
	switch {
	case deps.Service == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Guard == nil:
		return nil, oops.Errorf("guard is required")
	case deps.Logger == nil:
		return nil, oops.Errorf("logger is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "64K"
	}
	extractIP, err := ipExtractor(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractIP
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(deps.Logger)

	e.Use(requestID())
	if deps.Metrics != nil {
		e.Use(countRequests(deps.Metrics))
	}
	e.Use(requestLogger(deps.Logger))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			deps.Logger.ErrorContext(c.Request().Context(), "handler panic", "error", err, "stack", string(stack))
			return err
		},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders: []string{
				echo.HeaderAuthorization,
				echo.HeaderContentType,
				BootstrapTokenHeader,
			},
			ExposeHeaders: []string{echo.HeaderXRequestID, "Retry-After"},
		}))
	}

	limit := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if cfg.RateLimit.Enabled && deps.Redis != nil {
		limit = NewRateLimiter(deps.Redis, cfg.RateLimit).Middleware(deps.Logger)
	}

	registerRoutes(e, &handlers{svc: deps.Service, now: deps.Clock}, deps.Guard, limit)

	return &Server{cfg: cfg, logger: deps.Logger, echo: e}, nil
}

// ipExtractor picks the client address used for rate limiting and logs.
// Forwarding headers are honored only when the peer is a listed proxy.
func ipExtractor(proxies []string) (echo.IPExtractor, error) {
	if len(proxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range proxies {
		ipNet, err := ParseTrustedProxy(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// ParseTrustedProxy accepts a CIDR range or a single address.
func ParseTrustedProxy(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if _, ipNet, err := net.ParseCIDR(s); err == nil {
		return ipNet, nil
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, oops.Code("INVALID_TRUSTED_PROXY").With("proxy", s).Errorf("trusted proxy must be an address or CIDR range")
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

func registerRoutes(e *echo.Echo, h *handlers, guard *auth.Guard, limit echo.MiddlewareFunc) {
	required := authenticate(guard, false)
	optional := authenticate(guard, true)
	as := func(op auth.Operation) echo.MiddlewareFunc { return authorize(guard, op) }

	g := e.Group("/auth")
	g.POST("/signup", h.signUp, as(auth.OpSignUp))
	g.POST("/login", h.login, limit, as(auth.OpLogin))
	g.POST("/refresh", h.refresh, as(auth.OpRefreshTokens))
	g.POST("/logout", h.logout, as(auth.OpLogout))
	g.PUT("/change-password", h.changePassword, required, as(auth.OpChangePassword))
	g.POST("/forgot-password", h.forgotPassword, limit, as(auth.OpForgotPassword))
	g.POST("/verify-reset-code", h.verifyResetCode, limit, as(auth.OpVerifyResetCode))
	g.POST("/reset-password", h.resetPassword, limit, as(auth.OpResetPassword))
	g.PUT("/update-user-role", h.updateUserRole, required, as(auth.OpUpdateUserRole))
	g.POST("/create-super-admin", h.createSuperAdmin, limit, optional, as(auth.OpCreateSuperAdmin))
	g.PUT("/update-account-status", h.updateAccountStatus, required, as(auth.OpUpdateAccountStatus))
	g.GET("/users/:userId/status", h.getUserStatus, required, as(auth.OpGetUserStatus))
	g.GET("/users", h.getAllUsers, required, as(auth.OpGetAllUsers))
	g.GET("/health", h.health, as(auth.OpHealth))
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address. The returned channel receives a
// serve error, if one happens, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
