package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/circuitd/circuitd/internal/circuit"
)

// ArchiverConfig holds configuration for the event archiver.
type ArchiverConfig struct {
	ProjectID    string
	Subscription string
	Store        circuit.Store
	Logger       zerolog.Logger
}

// Archiver consumes circuit audit events from a Pub/Sub subscription
// and appends them to a durable store. It lets a fleet of breaker
// processes share one canonical audit trail.
type Archiver struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	store        circuit.Store
	logger       zerolog.Logger
}

// NewArchiver creates an archiver bound to the given subscription.
func NewArchiver(ctx context.Context, cfg ArchiverConfig) (*Archiver, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 32
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &Archiver{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.Subscription,
		store:        cfg.Store,
		logger:       cfg.Logger,
	}, nil
}

// Start consumes the subscription until ctx is cancelled.
func (a *Archiver) Start(ctx context.Context) error {
	a.logger.Info().
		Str("subscription", a.subscription).
		Msg("starting event archiver")

	return a.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		a.handleMessage(ctx, msg)
	})
}

// Close releases the Pub/Sub client.
func (a *Archiver) Close() error {
	return a.client.Close()
}

func (a *Archiver) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := a.logger.With().
		Str("message_id", msg.ID).
		Str("circuit", msg.Attributes["circuit"]).
		Logger()

	var event circuit.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// A malformed message never becomes parseable; ack it so it is
		// not redelivered forever.
		logger.Error().Err(err).Msg("failed to parse event, dropping")
		msg.Ack()
		return
	}

	if err := a.store.AppendEvent(ctx, &event); err != nil {
		logger.Error().Err(err).Msg("failed to archive event")
		msg.Nack()
		return
	}

	logger.Debug().
		Str("event_type", string(event.Type)).
		Msg("event archived")
	msg.Ack()
}
