package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/shared/events"
)

// SNSPublisherAdapter wires an SNSEventPublisher behind the
// events.Publisher interface using ambient AWS configuration
// (LocalStack works when AWS_ENDPOINT_URL is set).
type SNSPublisherAdapter struct {
	publisher *SNSEventPublisher
}

// NewSNSPublisherAdapter creates a new SNS publisher adapter
func NewSNSPublisherAdapter(ctx context.Context, topicArn string, logger zerolog.Logger) (*SNSPublisherAdapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &SNSPublisherAdapter{
		publisher: NewSNSEventPublisher(sns.NewFromConfig(cfg), topicArn, logger),
	}, nil
}

// Publish implements events.Publisher
func (p *SNSPublisherAdapter) Publish(ctx context.Context, evts ...*events.Event) error {
	return p.publisher.Publish(ctx, evts...)
}

// Close closes the publisher
func (p *SNSPublisherAdapter) Close() error {
	// the SNS client holds no connections that need explicit closing
	return nil
}
