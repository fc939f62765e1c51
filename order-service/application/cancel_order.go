package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// CancelOrderCommand represents the command to cancel an order
type CancelOrderCommand struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// CancelOrder use case
type CancelOrder struct {
	coordinator coordinator.Coordinator
}

// NewCancelOrder creates a new CancelOrder use case
func NewCancelOrder(c coordinator.Coordinator) *CancelOrder {
	return &CancelOrder{coordinator: c}
}

// Execute delivers a cancellation signal to the order process. The
// signal is a request; the process decides at its next checkpoint
// whether cancellation is still possible.
func (uc *CancelOrder) Execute(ctx context.Context, cmd *CancelOrderCommand) error {
	if cmd.OrderID == "" {
		return errors.New("order ID is required")
	}

	orderID, err := models.NewID(cmd.OrderID)
	if err != nil {
		return errors.Wrap(err, "invalid order ID")
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "cancelled by customer"
	}

	env, err := protocol.NewEnvelope(models.ID(""), &protocol.Cancel{Reason: reason})
	if err != nil {
		return errors.Wrap(err, "failed to encode cancellation")
	}

	if err := uc.coordinator.Signal(ctx, orderID, env); err != nil {
		return errors.Wrap(err, "failed to deliver cancellation")
	}
	return nil
}
