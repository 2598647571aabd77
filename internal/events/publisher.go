// Package events connects the breaker's audit trail to Google Pub/Sub:
// a publisher fans events out to a topic and an archiver consumes the
// topic into a durable store.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/circuitd/circuitd/internal/circuit"
)

// PublisherConfig holds configuration for the Pub/Sub publisher.
type PublisherConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// Publisher publishes circuit audit events to a Pub/Sub topic. It
// implements circuit.Publisher.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// NewPublisher creates a Pub/Sub publisher for circuit events.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		logger:    cfg.Logger,
	}, nil
}

// Publish sends one event to the topic and waits for the server ack so
// the caller (the breaker's journal goroutine) can log failures.
func (p *Publisher) Publish(ctx context.Context, event *circuit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"circuit":    event.Circuit,
			"event_type": string(event.Type),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Close flushes outstanding publishes and releases the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
