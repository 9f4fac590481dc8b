// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/wardenauth/warden/internal/auth"
)

// LogNotifier writes notifications to the log instead of delivering them.
// Codes are only logged when RevealCodes is set.
type LogNotifier struct {
	Logger      *slog.Logger
	RevealCodes bool
}

// SendResetCode logs the dispatch of a reset code.
func (n *LogNotifier) SendResetCode(ctx context.Context, msg auth.ResetNotification) error {
	attrs := []any{"email", msg.Email, "expires_at", msg.ExpiresAt}
	if n.RevealCodes {
		attrs = append(attrs, slog.String("reset_code", msg.Code))
	}
	n.Logger.InfoContext(ctx, "password reset code issued", attrs...)
	return nil
}

// RecordSecurityEvent logs the event at warn level.
func (n *LogNotifier) RecordSecurityEvent(ctx context.Context, event auth.SecurityEvent) error {
	attrs := []any{
		"kind", string(event.Kind),
		"account_id", event.AccountID,
		"occurred_at", event.OccurredAt,
	}
	if event.ActorID != "" {
		attrs = append(attrs, "actor_id", event.ActorID)
	}
	if event.FamilyID != "" {
		attrs = append(attrs, "family_id", event.FamilyID)
	}
	for k, v := range event.Detail {
		attrs = append(attrs, "detail_"+k, v)
	}
	n.Logger.WarnContext(ctx, "security event", attrs...)
	return nil
}

var (
	_ auth.ResetNotifier     = (*LogNotifier)(nil)
	_ auth.SecurityEventSink = (*LogNotifier)(nil)
)
