package application

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// SubmitOrderCommand represents the command to submit a new order
type SubmitOrderCommand struct {
	CustomerID      string            `json:"customer_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	Items           []models.LineItem `json:"items"`
	ShippingAddress models.Address    `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
}

// SubmitOrderResponse carries the identifier of the started instance
type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`
}

// SubmitOrder use case
type SubmitOrder struct {
	coordinator coordinator.Coordinator
}

// NewSubmitOrder creates a new SubmitOrder use case
func NewSubmitOrder(c coordinator.Coordinator) *SubmitOrder {
	return &SubmitOrder{coordinator: c}
}

// Execute validates the command and starts an order process instance
func (uc *SubmitOrder) Execute(ctx context.Context, cmd *SubmitOrderCommand) (*SubmitOrderResponse, error) {
	if err := uc.validateCommand(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid command")
	}

	customerID, err := models.NewID(cmd.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid customer ID")
	}

	req := OrderRequest{
		Customer: models.Customer{
			ID:    customerID,
			Name:  cmd.CustomerName,
			Email: cmd.CustomerEmail,
		},
		Items:           cmd.Items,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   cmd.PaymentMethod,
	}
	args, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode order request")
	}

	orderID, err := uc.coordinator.Start(ctx, protocol.ProcessTypeOrder, "", args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start order process")
	}

	ordersSubmitted.Inc()

	return &SubmitOrderResponse{OrderID: orderID.String()}, nil
}

func (uc *SubmitOrder) validateCommand(cmd *SubmitOrderCommand) error {
	if cmd.CustomerID == "" {
		return errors.New("customer ID is required")
	}
	if cmd.CustomerEmail == "" {
		return errors.New("customer email is required")
	}
	if len(cmd.Items) == 0 {
		return errors.New("at least one line item is required")
	}
	for i, item := range cmd.Items {
		if item.ProductID == "" {
			return errors.Errorf("item %d: product ID is required", i)
		}
		if item.Quantity <= 0 {
			return errors.Errorf("item %d: quantity must be positive", i)
		}
		if !item.UnitPrice.IsPositive() {
			return errors.Errorf("item %d: unit price must be positive", i)
		}
	}
	if cmd.ShippingAddress.IsZero() {
		return errors.New("shipping address is required")
	}
	if cmd.PaymentMethod == "" {
		return errors.New("payment method is required")
	}
	return nil
}
