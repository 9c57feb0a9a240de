// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package notify publishes best-effort notifications about newly created
// tasks over NATS via Watermill. Delivery is fire-and-forget: a publish
// failure is logged and never affects pipeline correctness.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/goccy/go-json"

	"github.com/averyk/echolog/internal/config"
	"github.com/averyk/echolog/internal/logging"
	"github.com/averyk/echolog/internal/models"
)

// Notifier is the notification sink boundary. The zero-value Noop
// implementation keeps call sites unconditional when NATS is disabled.
type Notifier interface {
	TaskCreated(ctx context.Context, userID, taskID string, task models.ExtractedTask)
	Close() error
}

// Noop is a Notifier that does nothing.
type Noop struct{}

// TaskCreated implements Notifier.
func (Noop) TaskCreated(context.Context, string, string, models.ExtractedTask) {}

// Close implements Notifier.
func (Noop) Close() error { return nil }

// Publisher is a Watermill/NATS-backed Notifier.
type Publisher struct {
	publisher message.Publisher
	subject   string
}

// NewPublisher connects to NATS and returns a task notifier.
func NewPublisher(cfg *config.NATSConfig) (*Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(10),
		natsgo.ReconnectWait(time.Second),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create notification publisher: %w", err)
	}

	return &Publisher{publisher: pub, subject: cfg.Subject}, nil
}

// taskCreatedEvent is the wire shape of a task notification.
type taskCreatedEvent struct {
	UserID      string    `json:"user_id"`
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	DueDate     string    `json:"due_date,omitempty"`
	Urgency     string    `json:"urgency,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskCreated publishes a task-created notification. Errors are logged
// and swallowed.
func (p *Publisher) TaskCreated(_ context.Context, userID, taskID string, task models.ExtractedTask) {
	payload, err := json.Marshal(taskCreatedEvent{
		UserID:      userID,
		TaskID:      taskID,
		Description: task.Description,
		DueDate:     task.DueDate,
		Urgency:     task.Urgency,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to marshal task notification")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(p.subject, msg); err != nil {
		logging.Warn().Err(err).Str("task", taskID).Msg("Task notification publish failed (ignored)")
	}
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}
