// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for credential operations.
var (
	// hashDuration tracks time spent inside argon2 and bcrypt, by operation.
	hashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warden_password_hash_duration_seconds",
		Help:    "Histogram of password hash and verify latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_logins_total",
		Help: "Total number of login attempts by outcome",
	}, []string{"outcome"})

	rotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_token_rotations_total",
		Help: "Total number of refresh token rotations by outcome",
	}, []string{"outcome"})

	// refreshReuseTotal counts presented refresh tokens that had already
	// been rotated or revoked.
	refreshReuseTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_refresh_reuse_total",
		Help: "Total number of refresh token reuse detections",
	})

	resetCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_reset_codes_issued_total",
		Help: "Total number of password reset codes issued",
	})
)

// Outcome labels.
const (
	outcomeSuccess  = "success"
	outcomeInvalid  = "invalid"
	outcomeDisabled = "disabled"
	outcomeExpired  = "expired"
	outcomeReuse    = "reuse"
	outcomeError    = "error"
)
