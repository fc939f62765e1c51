package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// ControlFulfillment use case delivers pause, resume and cancel signals
// to a fulfillment process.
type ControlFulfillment struct {
	coordinator coordinator.Coordinator
}

// NewControlFulfillment creates a new ControlFulfillment use case
func NewControlFulfillment(c coordinator.Coordinator) *ControlFulfillment {
	return &ControlFulfillment{coordinator: c}
}

// Pause suspends a fulfillment at its next checkpoint
func (uc *ControlFulfillment) Pause(ctx context.Context, fulfillmentID string) error {
	return uc.signal(ctx, fulfillmentID, &protocol.Pause{})
}

// Resume releases a paused fulfillment
func (uc *ControlFulfillment) Resume(ctx context.Context, fulfillmentID string) error {
	return uc.signal(ctx, fulfillmentID, &protocol.Resume{})
}

// Cancel requests cooperative cancellation
func (uc *ControlFulfillment) Cancel(ctx context.Context, fulfillmentID, reason string) error {
	if reason == "" {
		reason = "cancelled by operator"
	}
	return uc.signal(ctx, fulfillmentID, &protocol.Cancel{Reason: reason})
}

// UpdateShippingAddress replaces the destination of an in-flight
// fulfillment.
func (uc *ControlFulfillment) UpdateShippingAddress(ctx context.Context, fulfillmentID string, address models.Address) error {
	if address.IsZero() {
		return errors.New("shipping address is required")
	}
	return uc.signal(ctx, fulfillmentID, &protocol.UpdateShippingAddress{Address: address})
}

func (uc *ControlFulfillment) signal(ctx context.Context, fulfillmentID string, sig protocol.Signal) error {
	id, err := models.NewID(fulfillmentID)
	if err != nil {
		return errors.Wrap(err, "invalid fulfillment ID")
	}

	env, err := protocol.NewEnvelope(models.ID(""), sig)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s signal", sig.Kind())
	}

	if err := uc.coordinator.Signal(ctx, id, env); err != nil {
		return errors.Wrapf(err, "failed to deliver %s signal", sig.Kind())
	}
	return nil
}
