package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/orderflow/fulfillment-system/shared/events"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

// SNS caps batch publishes at ten entries
const maxBatchSize = 10

type snsMessage struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      events.Metadata `json:"metadata"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// SNSEventPublisher publishes saga lifecycle events to an SNS topic.
// The audit trail is fire-and-forget from the sagas' perspective, so a
// failed batch surfaces as an error to the caller who decides whether
// to log or retry.
type SNSEventPublisher struct {
	client   *sns.Client
	topicArn string
	logger   zerolog.Logger
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client *sns.Client, topicArn string, logger zerolog.Logger) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		logger:   logger,
	}
}

// Publish publishes events to SNS in parallel batches
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	gr, ctx := errgroup.WithContext(ctx)
	for _, batch := range splitToChunks(evts, maxBatchSize) {
		batch := batch
		gr.Go(func() error {
			return p.batchPublish(ctx, batch)
		})
	}
	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	entries := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		payload, err := event.MarshalPayload()
		if err != nil {
			return errors.Wrap(err, "failed to marshal event payload")
		}

		message := &snsMessage{
			ID:            event.ID.String(),
			AggregateID:   event.AggregateID.String(),
			Topic:         event.Topic.String(),
			EventType:     event.EventType,
			Version:       event.Version,
			Payload:       payload,
			Metadata:      event.Metadata,
			Timestamp:     event.Timestamp,
			CorrelationID: event.CorrelationID.String(),
		}

		body, err := json.Marshal(message)
		if err != nil {
			return errors.Wrap(err, "failed to marshal SNS message")
		}

		attrs := map[string]types.MessageAttributeValue{
			"topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Topic.String()),
			},
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.EventType),
			},
		}
		for k, v := range event.Metadata {
			if k == SQSMessageIDKey || k == SQSReceiptHandleKey {
				continue // transport-local, never re-published
			}
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}

		entries[i] = types.PublishBatchRequestEntry{
			Id:                aws.String(event.ID.String()),
			Message:           aws.String(string(body)),
			MessageAttributes: attrs,
		}
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   &p.topicArn,
		PublishBatchRequestEntries: entries,
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	for _, failed := range res.Failed {
		p.logger.Warn().
			Str("entry_id", aws.ToString(failed.Id)).
			Str("code", aws.ToString(failed.Code)).
			Str("message", aws.ToString(failed.Message)).
			Msg("SNS rejected event")
	}
	if len(res.Failed) > 0 {
		return errors.Errorf("SNS rejected %d of %d events", len(res.Failed), len(entries))
	}

	return nil
}

// splitToChunks splits a slice into chunks of at most chunkSize
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
