package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "AUDIT"
	subjectPrefix = "traceline.audit."
)

// Publisher mirrors audit events onto a JetStream stream so downstream
// consumers (reporting, compliance export) can subscribe without touching
// the relational store.
type Publisher struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the publisher's logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher ensures the AUDIT stream exists and returns a recorder that
// publishes to traceline.audit.<entity_type>.
func NewPublisher(ctx context.Context, nc *nats.Conn, opts ...PublisherOption) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure audit stream: %w", err)
	}
	p := &Publisher{js: js, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) Record(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	subject := subjectPrefix + event.EntityType
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	p.logger.Debug("audit event published", "subject", subject, "operation", event.Operation)
	return nil
}
