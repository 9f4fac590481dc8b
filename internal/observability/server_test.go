// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, checks ...Check) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", discardLogger(), checks...)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test-local address
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t)

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("expected Prometheus exposition format")
	}
	// Runtime collectors come from the default registry.
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_* metrics")
	}
}

func TestServer_MetricsIncludeHTTPRequests(t *testing.T) {
	server := startServer(t)

	server.HTTPMetrics().Observe(http.MethodPost, "/auth/login", http.StatusOK, 20*time.Millisecond)
	server.HTTPMetrics().Observe(http.MethodPost, "/auth/login", http.StatusOK, 30*time.Millisecond)
	server.HTTPMetrics().Observe(http.MethodPost, "/auth/login", http.StatusUnauthorized, time.Millisecond)

	_, body := get(t, "http://"+server.Addr()+"/metrics")
	if !strings.Contains(body, `warden_http_requests_total{method="POST",route="/auth/login",status="200"} 2`) {
		t.Errorf("expected request counter for 200s, got:\n%s", body)
	}
	if !strings.Contains(body, `warden_http_requests_total{method="POST",route="/auth/login",status="401"} 1`) {
		t.Error("expected request counter for 401s")
	}
	if !strings.Contains(body, "warden_http_request_duration_seconds_bucket") {
		t.Error("expected request duration histogram")
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := startServer(t, Check{Name: "db", Ping: func(context.Context) error {
		return errors.New("down")
	}})

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if body != "ok\n" {
		t.Errorf("expected body 'ok\\n', got %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   "ok\n",
		},
		{
			name:       "all healthy",
			checks:     []Check{{Name: "postgres", Ping: healthy}, {Name: "redis", Ping: healthy}},
			wantStatus: http.StatusOK,
			wantBody:   "ok\n",
		},
		{
			name: "failing checks are listed in order",
			checks: []Check{
				{Name: "redis", Ping: broken},
				{Name: "postgres", Ping: healthy},
				{Name: "amqp", Ping: broken},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not ready: amqp, redis\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1:0", discardLogger(), tt.checks...)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestServer_ReadinessCheckTimeout(t *testing.T) {
	slow := Check{Name: "mongo", Ping: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	server := NewServer("127.0.0.1:0", discardLogger(), slow)
	server.SetCheckTimeout(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	start := time.Now()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("check was not bounded by the check timeout: %v", elapsed)
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on second Start()")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", discardLogger())
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("first Stop() failed: %v", err)
	}
	if err := server.Stop(ctx); err != nil {
		t.Errorf("second Stop() should be a no-op, got: %v", err)
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", discardLogger())
	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	// Closing the listener out from under Serve makes it fail.
	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error after closing the listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", discardLogger())
	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}
