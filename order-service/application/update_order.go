package application

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// UpdateOrderCommand represents the command to amend an in-flight order.
// Nil fields are left untouched.
type UpdateOrderCommand struct {
	OrderID         string          `json:"order_id"`
	ShippingAddress *models.Address `json:"shipping_address,omitempty"`
	CustomerEmail   *string         `json:"customer_email,omitempty"`
	CustomerName    *string         `json:"customer_name,omitempty"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
}

// UpdateOrder use case
type UpdateOrder struct {
	coordinator coordinator.Coordinator
}

// NewUpdateOrder creates a new UpdateOrder use case
func NewUpdateOrder(c coordinator.Coordinator) *UpdateOrder {
	return &UpdateOrder{coordinator: c}
}

// Execute delivers an update signal to the order process
func (uc *UpdateOrder) Execute(ctx context.Context, cmd *UpdateOrderCommand) error {
	if cmd.OrderID == "" {
		return errors.New("order ID is required")
	}
	if cmd.ShippingAddress == nil && cmd.CustomerEmail == nil && cmd.CustomerName == nil && cmd.PaymentMethod == nil {
		return errors.New("no fields to update")
	}

	orderID, err := models.NewID(cmd.OrderID)
	if err != nil {
		return errors.Wrap(err, "invalid order ID")
	}

	env, err := protocol.NewEnvelope(models.ID(""), &protocol.UpdateOrder{
		ShippingAddress: cmd.ShippingAddress,
		CustomerEmail:   cmd.CustomerEmail,
		CustomerName:    cmd.CustomerName,
		PaymentMethod:   cmd.PaymentMethod,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode update")
	}

	if err := uc.coordinator.Signal(ctx, orderID, env); err != nil {
		return errors.Wrap(err, "failed to deliver update")
	}
	return nil
}
