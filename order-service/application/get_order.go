package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// GetOrderStatus use case reads the status view of a live order process
type GetOrderStatus struct {
	coordinator coordinator.Coordinator
}

// NewGetOrderStatus creates a new GetOrderStatus use case
func NewGetOrderStatus(c coordinator.Coordinator) *GetOrderStatus {
	return &GetOrderStatus{coordinator: c}
}

// Execute queries the order process for its status view
func (uc *GetOrderStatus) Execute(ctx context.Context, orderID string) (*StatusView, error) {
	id, err := models.NewID(orderID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}

	result, err := uc.coordinator.Query(ctx, id, protocol.QueryStatus)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query order status")
	}

	view, ok := result.(StatusView)
	if !ok {
		return nil, errors.Errorf("unexpected status query result %T", result)
	}
	return &view, nil
}

// GetOrderProgress use case reads the progress view of a live order
// process.
type GetOrderProgress struct {
	coordinator coordinator.Coordinator
}

// NewGetOrderProgress creates a new GetOrderProgress use case
func NewGetOrderProgress(c coordinator.Coordinator) *GetOrderProgress {
	return &GetOrderProgress{coordinator: c}
}

// Execute queries the order process for its progress view
func (uc *GetOrderProgress) Execute(ctx context.Context, orderID string) (*ProgressView, error) {
	id, err := models.NewID(orderID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}

	result, err := uc.coordinator.Query(ctx, id, protocol.QueryProgress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query order progress")
	}

	view, ok := result.(ProgressView)
	if !ok {
		return nil, errors.Errorf("unexpected progress query result %T", result)
	}
	return &view, nil
}
