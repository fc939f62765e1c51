package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// GetFulfillment use case reads the status and progress views of a live
// fulfillment process.
type GetFulfillment struct {
	coordinator coordinator.Coordinator
}

// NewGetFulfillment creates a new GetFulfillment use case
func NewGetFulfillment(c coordinator.Coordinator) *GetFulfillment {
	return &GetFulfillment{coordinator: c}
}

// Status queries the fulfillment process for its status view
func (uc *GetFulfillment) Status(ctx context.Context, fulfillmentID string) (*StatusView, error) {
	id, err := models.NewID(fulfillmentID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid fulfillment ID")
	}

	result, err := uc.coordinator.Query(ctx, id, protocol.QueryStatus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query fulfillment status")
	}

	view, ok := result.(StatusView)
	if !ok {
		return nil, errors.Errorf("unexpected status query result %T", result)
	}
	return &view, nil
}

// Progress queries the fulfillment process for its progress view
func (uc *GetFulfillment) Progress(ctx context.Context, fulfillmentID string) (*ProgressView, error) {
	id, err := models.NewID(fulfillmentID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid fulfillment ID")
	}

	result, err := uc.coordinator.Query(ctx, id, protocol.QueryProgress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query fulfillment progress")
	}

	view, ok := result.(ProgressView)
	if !ok {
		return nil, errors.Errorf("unexpected progress query result %T", result)
	}
	return &view, nil
}
