package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
)

// Transport metadata keys attached to events read from SQS
const (
	SQSMessageIDKey     = "sqs_message_id"
	SQSReceiptHandleKey = "sqs_receipt_handle"
)

type sqsWorkItem struct {
	Message types.Message
	Event   *events.Event
	Err     error
}

// EventHandler handles events delivered from SQS
type EventHandler interface {
	HandlerID() string
	Handle(ctx context.Context, event *events.Event) error
}

// EventHandlerFunc creates a handler from a function
type EventHandlerFunc struct {
	id string
	fn func(ctx context.Context, event *events.Event) error
}

func NewEventHandlerFunc(id string, fn func(ctx context.Context, event *events.Event) error) *EventHandlerFunc {
	return &EventHandlerFunc{id: id, fn: fn}
}

func (h *EventHandlerFunc) HandlerID() string {
	return h.id
}

func (h *EventHandlerFunc) Handle(ctx context.Context, event *events.Event) error {
	return h.fn(ctx, event)
}

// SQSEventSubscriber drains an SQS queue of saga lifecycle events.
// Readers receive, workers handle, cleaners ack or extend visibility.
type SQSEventSubscriber struct {
	mux      sync.RWMutex
	inbound  chan *sqsWorkItem
	outbound chan *sqsWorkItem
	cancel   context.CancelFunc
	running  atomic.Bool
	options  *sqsSubscriberOptions

	client   *sqs.Client
	queueURL string
	pattern  events.Topic
	handler  EventHandler
	logger   zerolog.Logger
}

type sqsSubscriberOptions struct {
	workers                        int32
	readers                        int32
	cleaners                       int32
	maxNumberOfMessages            int32
	waitTimeSeconds                int32
	visibilityTimeout              int32
	sleepTimeAfterEmptyReceive     time.Duration
	sleepTimeAfterError            time.Duration
	ack                            bool
	extendVisibilityTimeoutOnError bool
	receiveCountRange              int32
	visibilityTimeoutOffset        int32
	maxVisibilityTimeout           int32
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.workers = workers
	}
}

func WithReaders(readers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.readers = readers
	}
}

func WithVisibilityTimeout(timeout int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.visibilityTimeout = timeout
	}
}

// NewSQSEventSubscriber creates a subscriber that delivers events whose
// topic matches pattern to the handler. Pattern syntax follows
// events.Topic matching ("order.#", "*.cancelled", "#").
func NewSQSEventSubscriber(
	client *sqs.Client,
	queueURL string,
	pattern events.Topic,
	handler EventHandler,
	logger zerolog.Logger,
	opts ...SQSSubscriberOption,
) *SQSEventSubscriber {
	options := &sqsSubscriberOptions{
		workers:                        10,
		readers:                        1,
		cleaners:                       2,
		maxNumberOfMessages:            5,
		waitTimeSeconds:                15,
		visibilityTimeout:              30,
		sleepTimeAfterEmptyReceive:     10 * time.Second,
		sleepTimeAfterError:            20 * time.Second,
		ack:                            true,
		extendVisibilityTimeoutOnError: true,
		receiveCountRange:              3,
		visibilityTimeoutOffset:        30,
		maxVisibilityTimeout:           900,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &SQSEventSubscriber{
		client:   client,
		queueURL: queueURL,
		pattern:  pattern,
		handler:  handler,
		logger:   logger,
		inbound:  make(chan *sqsWorkItem, 10),
		outbound: make(chan *sqsWorkItem, 10),
		options:  options,
	}
}

// Start launches the reader, worker and cleaner goroutines
func (s *SQSEventSubscriber) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	s.inbound = make(chan *sqsWorkItem, 10)
	s.outbound = make(chan *sqsWorkItem, 10)
	s.cancel = cancel

	for i := 0; i < int(s.options.workers); i++ {
		go s.startWorker(ctx)
	}
	for i := 0; i < int(s.options.readers); i++ {
		go s.startReader(ctx)
	}
	for i := 0; i < int(s.options.cleaners); i++ {
		go s.startCleaner(ctx)
	}

	s.running.Store(true)
	return nil
}

// Stop halts the subscriber
func (s *SQSEventSubscriber) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.running.Store(false)
	return nil
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.inbound:
			if item == nil {
				continue
			}
			s.handle(ctx, item)
		}
	}
}

func (s *SQSEventSubscriber) startReader(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.read(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("SQS receive failed")
				time.Sleep(s.options.sleepTimeAfterError)
			}
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.outbound:
			if item == nil {
				continue
			}
			if err := s.clean(ctx, item); err != nil {
				s.logger.Warn().Err(err).Msg("SQS cleanup failed")
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context) error {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		AttributeNames: []types.QueueAttributeName{
			"ApproximateReceiveCount",
			"ApproximateFirstReceiveTimestamp",
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to receive message from SQS")
	}

	if len(output.Messages) == 0 {
		time.Sleep(s.options.sleepTimeAfterEmptyReceive)
		return nil
	}

	for _, message := range output.Messages {
		event, err := s.decode(message)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("message_id", aws.ToString(message.MessageId)).
				Msg("skipping malformed SQS message")
			continue
		}

		if !event.Topic.Matches(s.pattern) {
			// not for this handler; ack so it does not redeliver
			select {
			case s.outbound <- &sqsWorkItem{Message: message, Event: event}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		select {
		case s.inbound <- &sqsWorkItem{Message: message, Event: event}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *SQSEventSubscriber) decode(message types.Message) (*events.Event, error) {
	var wire snsMessage
	if err := json.Unmarshal([]byte(aws.ToString(message.Body)), &wire); err != nil {
		return nil, errors.Wrap(err, "failed to decode message body")
	}

	topic, err := events.NewTopic(wire.Topic)
	if err != nil {
		return nil, errors.Wrap(err, "message has no topic")
	}

	event := &events.Event{
		ID:            models.ID(wire.ID),
		AggregateID:   models.ID(wire.AggregateID),
		Topic:         topic,
		EventType:     wire.EventType,
		Version:       wire.Version,
		Data:          wire.Payload,
		Metadata:      wire.Metadata,
		Timestamp:     wire.Timestamp,
		CorrelationID: models.ID(wire.CorrelationID),
	}
	if event.Metadata == nil {
		event.Metadata = make(events.Metadata)
	}

	event.Metadata.Set(SQSMessageIDKey, aws.ToString(message.MessageId))
	if message.ReceiptHandle != nil {
		event.Metadata.Set(SQSReceiptHandleKey, *message.ReceiptHandle)
	}
	for k, v := range message.MessageAttributes {
		if v.StringValue != nil {
			event.Metadata.Set(k, *v.StringValue)
		}
	}

	return event, nil
}

func (s *SQSEventSubscriber) handle(ctx context.Context, item *sqsWorkItem) {
	s.mux.RLock()
	handler := s.handler
	s.mux.RUnlock()

	if handler == nil {
		item.Err = errors.New("no handler configured")
	} else {
		item.Err = handler.Handle(ctx, item.Event)
	}

	select {
	case s.outbound <- item:
	case <-ctx.Done():
	}
}

func (s *SQSEventSubscriber) clean(ctx context.Context, item *sqsWorkItem) error {
	if item.Err != nil {
		if s.options.extendVisibilityTimeoutOnError {
			receiveCount, err := strconv.Atoi(item.Message.Attributes["ApproximateReceiveCount"])
			if err != nil {
				receiveCount = 1
			}

			visibilityTimeout := s.options.visibilityTimeout
			visibilityTimeout += (int32(receiveCount) / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset
			if visibilityTimeout > s.options.maxVisibilityTimeout {
				visibilityTimeout = s.options.maxVisibilityTimeout
			}

			_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          &s.queueURL,
				ReceiptHandle:     item.Message.ReceiptHandle,
				VisibilityTimeout: visibilityTimeout,
			})
			if err != nil {
				return errors.Wrap(err, "failed to extend visibility timeout")
			}
		}
		return nil
	}

	if s.options.ack {
		_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &s.queueURL,
			ReceiptHandle: item.Message.ReceiptHandle,
		})
		if err != nil {
			return errors.Wrap(err, "failed to delete message from SQS")
		}
	}

	return nil
}
