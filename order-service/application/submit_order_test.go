package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fulfillment "github.com/orderflow/fulfillment-system/fulfillment-service/application"
	"github.com/orderflow/fulfillment-system/order-service/domain"
	"github.com/orderflow/fulfillment-system/shared/models"
)

func validSubmitCommand() *SubmitOrderCommand {
	return &SubmitOrderCommand{
		CustomerID:    "550e8400-e29b-41d4-a716-446655440010",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Items: []models.LineItem{
			{ProductID: "widget-basic", Name: "Basic Widget", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")},
			{ProductID: "gadget-mini", Name: "Mini Gadget", Quantity: 2, UnitPrice: models.NewMoney(500, "USD")},
		},
		ShippingAddress: models.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "US",
		},
		PaymentMethod: "credit_card",
	}
}

func TestSubmitOrder_Execute(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(cmd *SubmitOrderCommand)
		expectedError string
	}{
		{
			name:   "valid command",
			mutate: func(cmd *SubmitOrderCommand) {},
		},
		{
			name:          "missing customer ID",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.CustomerID = "" },
			expectedError: "customer ID is required",
		},
		{
			name:          "malformed customer ID",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.CustomerID = "not-a-uuid" },
			expectedError: "invalid customer ID",
		},
		{
			name:          "missing customer email",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.CustomerEmail = "" },
			expectedError: "customer email is required",
		},
		{
			name:          "no items",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.Items = nil },
			expectedError: "at least one line item",
		},
		{
			name:          "item without product ID",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.Items[0].ProductID = "" },
			expectedError: "product ID is required",
		},
		{
			name:          "non-positive quantity",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.Items[1].Quantity = 0 },
			expectedError: "quantity must be positive",
		},
		{
			name:          "non-positive unit price",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.Items[0].UnitPrice = models.NewMoney(0, "USD") },
			expectedError: "unit price must be positive",
		},
		{
			name:          "missing shipping address",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.ShippingAddress = models.Address{} },
			expectedError: "shipping address is required",
		},
		{
			name:          "missing payment method",
			mutate:        func(cmd *SubmitOrderCommand) { cmd.PaymentMethod = "" },
			expectedError: "payment method is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSagaHarness(defaultStock(), fulfillment.Timings{})
			useCase := NewSubmitOrder(h.runtime)

			cmd := validSubmitCommand()
			tt.mutate(cmd)

			result, err := useCase.Execute(context.Background(), cmd)
			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, result)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, result)

			orderID, err := models.NewID(result.OrderID)
			require.NoError(t, err)
			h.waitTerminal(t, orderID)
			assert.Equal(t, domain.OrderStatusShipped, h.orderStatus(t, orderID).Status)
		})
	}
}

func TestGetOrderStatus_Execute(t *testing.T) {
	h := newSagaHarness(defaultStock(), fulfillment.Timings{})
	orderID := h.submit(t, testOrderRequest())
	h.waitTerminal(t, orderID)

	view, err := NewGetOrderStatus(h.runtime).Execute(context.Background(), orderID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, view.Status)

	_, err = NewGetOrderStatus(h.runtime).Execute(context.Background(), "not-a-uuid")
	assert.Error(t, err)

	_, err = NewGetOrderStatus(h.runtime).Execute(context.Background(), models.GenerateUUID().String())
	assert.Error(t, err)
}

func TestGetOrderProgress_Execute(t *testing.T) {
	h := newSagaHarness(defaultStock(), fulfillment.Timings{})
	orderID := h.submit(t, testOrderRequest())
	h.waitTerminal(t, orderID)

	view, err := NewGetOrderProgress(h.runtime).Execute(context.Background(), orderID.String())
	require.NoError(t, err)
	assert.Equal(t, 100, view.Percent)
	assert.Equal(t, domain.OrderStatusShipped, view.Status)
}

func TestCancelOrder_Execute(t *testing.T) {
	h := newSagaHarness(defaultStock(), fulfillment.Timings{})

	err := NewCancelOrder(h.runtime).Execute(context.Background(), &CancelOrderCommand{OrderID: ""})
	assert.Error(t, err)

	err = NewCancelOrder(h.runtime).Execute(context.Background(), &CancelOrderCommand{OrderID: "not-a-uuid"})
	assert.Error(t, err)

	err = NewCancelOrder(h.runtime).Execute(context.Background(), &CancelOrderCommand{
		OrderID: models.GenerateUUID().String(),
	})
	assert.Error(t, err)
}
