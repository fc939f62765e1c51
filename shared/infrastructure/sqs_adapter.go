package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/shared/events"
)

// SQSSubscriberAdapter wires an SQSEventSubscriber behind the
// events.Subscriber interface.
type SQSSubscriberAdapter struct {
	subscriber *SQSEventSubscriber
	queueURL   string
	logger     zerolog.Logger
	isRunning  bool
}

// NewSQSSubscriberAdapter creates a new SQS subscriber adapter
func NewSQSSubscriberAdapter(queueURL string, logger zerolog.Logger) (*SQSSubscriberAdapter, error) {
	return &SQSSubscriberAdapter{
		queueURL: queueURL,
		logger:   logger,
	}, nil
}

type eventHandlerAdapter struct {
	handler events.EventHandler
}

func (a *eventHandlerAdapter) HandlerID() string {
	return "event-handler-adapter"
}

func (a *eventHandlerAdapter) Handle(ctx context.Context, event *events.Event) error {
	return a.handler.Handle(ctx, event)
}

// Subscribe implements events.Subscriber. topicPattern follows
// events.Topic matching syntax.
func (s *SQSSubscriberAdapter) Subscribe(ctx context.Context, topicPattern string, handler events.EventHandler) error {
	if s.isRunning {
		return errors.New("subscriber is already running")
	}

	pattern, err := events.NewTopic(topicPattern)
	if err != nil {
		return errors.Wrap(err, "invalid topic pattern")
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load AWS config")
	}

	s.subscriber = NewSQSEventSubscriber(
		sqs.NewFromConfig(cfg),
		s.queueURL,
		pattern,
		&eventHandlerAdapter{handler: handler},
		s.logger,
	)

	if err := s.subscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start SQS subscriber")
	}

	s.isRunning = true
	return nil
}

// Close stops the subscriber
func (s *SQSSubscriberAdapter) Close() error {
	if !s.isRunning || s.subscriber == nil {
		return nil
	}

	if err := s.subscriber.Stop(context.Background()); err != nil {
		return errors.Wrap(err, "failed to stop SQS subscriber")
	}

	s.isRunning = false
	return nil
}
