// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package notify delivers reset codes and security events outside the
// process.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// Queue names declared by AMQPPublisher.
const (
	ResetQueue    = "warden.password_reset"
	SecurityQueue = "warden.security_events"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// ChannelOpener opens a fresh channel.
type ChannelOpener func() (Channel, error)

// ConnectionOpener opens channels on an established connection.
func ConnectionOpener(conn *amqp.Connection) ChannelOpener {
	return func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by the publisher
		}
		return ch, nil
	}
}

// AMQPPublisher publishes persistent JSON messages to durable queues on the
// default exchange. It implements auth.ResetNotifier and
// auth.SecurityEventSink.
type AMQPPublisher struct {
	open   ChannelOpener
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
	ch Channel
}

// NewAMQPPublisher opens a channel and declares both queues.
func NewAMQPPublisher(open ChannelOpener, logger *slog.Logger) (*AMQPPublisher, error) {
	if open == nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("channel opener is required")
	}
	if logger == nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("logger is required")
	}
	p := &AMQPPublisher{open: open, logger: logger, now: time.Now}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reopenLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// SendResetCode publishes the notification to ResetQueue.
func (p *AMQPPublisher) SendResetCode(ctx context.Context, n auth.ResetNotification) error {
	return p.publish(ctx, ResetQueue, n)
}

// RecordSecurityEvent publishes the event to SecurityQueue.
func (p *AMQPPublisher) RecordSecurityEvent(ctx context.Context, event auth.SecurityEvent) error {
	return p.publish(ctx, SecurityQueue, event)
}

// Close closes the current channel. The connection is owned by the caller.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		return oops.Code("NOTIFY_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").With("queue", queue).Wrap(err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.reopenLocked(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, "", queue, false, false, msg)
	if err != nil && p.ch.IsClosed() {
		p.logger.Warn("amqp channel closed, reopening", "queue", queue, "error", err)
		if reopenErr := p.reopenLocked(); reopenErr != nil {
			return reopenErr
		}
		err = p.ch.PublishWithContext(ctx, "", queue, false, false, msg)
	}
	if err != nil {
		return oops.Code("NOTIFY_PUBLISH_FAILED").
			With("queue", queue).
			With("message_id", msg.MessageId).
			Wrap(err)
	}
	return nil
}

func (p *AMQPPublisher) reopenLocked() error {
	ch, err := p.open()
	if err != nil {
		return oops.Code("NOTIFY_CHANNEL_FAILED").With("operation", "open channel").Wrap(err)
	}
	for _, queue := range []string{ResetQueue, SecurityQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close() //nolint:errcheck // declare error takes precedence
			return oops.Code("NOTIFY_CHANNEL_FAILED").
				With("operation", "declare queue").
				With("queue", queue).
				Wrap(err)
		}
	}
	p.ch = ch
	return nil
}

var (
	_ auth.ResetNotifier     = (*AMQPPublisher)(nil)
	_ auth.SecurityEventSink = (*AMQPPublisher)(nil)
)
