// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package auth

import (
	"context"
	"time"
)

// SecurityEventKind classifies a security event.
type SecurityEventKind string

// Security event kinds.
const (
	EventRefreshReuse      SecurityEventKind = "refresh_token_reuse"
	EventPasswordReset     SecurityEventKind = "password_reset"
	EventPasswordChanged   SecurityEventKind = "password_changed"
	EventRoleChanged       SecurityEventKind = "role_changed"
	EventStatusChanged     SecurityEventKind = "status_changed"
	EventSuperAdminCreated SecurityEventKind = "super_admin_created"
)

// SecurityEvent is emitted for actions an operator may want to audit or
// alert on.
type SecurityEvent struct {
	Kind       SecurityEventKind `json:"kind"`
	AccountID  string            `json:"accountId"`
	ActorID    string            `json:"actorId,omitempty"`
	FamilyID   string            `json:"familyId,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// SecurityEventSink receives security events.
type SecurityEventSink interface {
	RecordSecurityEvent(ctx context.Context, event SecurityEvent) error
}

// ResetNotification carries a freshly issued reset code to its owner.
type ResetNotification struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResetNotifier delivers reset codes out of band.
type ResetNotifier interface {
	SendResetCode(ctx context.Context, n ResetNotification) error
}
