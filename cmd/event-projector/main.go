package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	orderconfig "github.com/orderflow/fulfillment-system/order-service/config"
	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/infrastructure"
)

// The event projector drains the audit queue and appends every saga
// lifecycle event to the Postgres event stream.
func main() {
	cfg, err := orderconfig.ReadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "event-projector").
		Logger()
	logger.Info().Str("queue", cfg.AWS.SQSQueueURL).Msg("starting event projector")

	db, err := sqlx.Connect("postgres", cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := infrastructure.NewPostgresEventStore(db)

	subscriber, err := infrastructure.NewSQSSubscriberAdapter(cfg.AWS.SQSQueueURL, logger)
	if err != nil {
		log.Fatalf("Failed to create SQS subscriber: %v", err)
	}
	defer subscriber.Close()

	projector := &eventProjector{store: store, logger: logger}

	ctx := context.Background()
	// "#" matches every order and fulfillment lifecycle topic
	if err := subscriber.Subscribe(ctx, "#", projector); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("event projector stopped")
}

type eventProjector struct {
	store  events.EventStore
	logger zerolog.Logger
}

// Handle appends the event to its aggregate's stream, skipping
// duplicates so at-least-once delivery stays safe.
func (p *eventProjector) Handle(ctx context.Context, event *events.Event) error {
	existing, err := p.store.GetEvents(ctx, event.AggregateID)
	if err != nil {
		return err
	}

	for _, e := range existing {
		if e.ID == event.ID {
			p.logger.Debug().
				Str("event_id", event.ID.String()).
				Msg("skipping duplicate event")
			return nil
		}
	}

	return p.store.SaveEvents(ctx, event.AggregateID, []*events.Event{event}, len(existing))
}
