package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
)

func testCustomer() models.Customer {
	return models.Customer{
		ID:    models.GenerateUUID(),
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
	}
}

func testAddress() models.Address {
	return models.Address{
		Line1:      "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
	}
}

func testItems() []models.LineItem {
	return []models.LineItem{
		{ProductID: "widget-basic", Name: "Basic Widget", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")},
		{ProductID: "gadget-mini", Name: "Mini Gadget", Quantity: 2, UnitPrice: models.NewMoney(500, "USD")},
	}
}

func TestNewOrderRecord(t *testing.T) {
	tests := []struct {
		name          string
		customer      models.Customer
		items         []models.LineItem
		expectedError string
	}{
		{
			name:     "valid order",
			customer: testCustomer(),
			items:    testItems(),
		},
		{
			name:          "no items",
			customer:      testCustomer(),
			items:         nil,
			expectedError: "at least one item",
		},
		{
			name:     "non-positive quantity",
			customer: testCustomer(),
			items: []models.LineItem{
				{ProductID: "widget-basic", Quantity: 0, UnitPrice: models.NewMoney(1000, "USD")},
			},
			expectedError: "non-positive quantity",
		},
		{
			name:     "non-positive unit price",
			customer: testCustomer(),
			items: []models.LineItem{
				{ProductID: "widget-basic", Quantity: 1, UnitPrice: models.NewMoney(0, "USD")},
			},
			expectedError: "non-positive unit price",
		},
		{
			name:          "missing customer email",
			customer:      models.Customer{ID: models.GenerateUUID(), Name: "Ada"},
			items:         testItems(),
			expectedError: "customer email is required",
		},
		{
			name:     "mixed currencies",
			customer: testCustomer(),
			items: []models.LineItem{
				{ProductID: "widget-basic", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")},
				{ProductID: "gadget-mini", Quantity: 1, UnitPrice: models.NewMoney(500, "EUR")},
			},
			expectedError: "mixed currencies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewOrderRecord(tt.customer, tt.items, testAddress(), "credit_card")
			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, rec)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, OrderStatusPending, rec.Status)
			assert.Equal(t, "Order received", rec.CurrentStep)
			assert.Equal(t, models.NewMoney(2000, "USD"), rec.TotalAmount)
			assert.False(t, rec.OrderID.IsEmpty())

			recorded := rec.Events()
			require.Len(t, recorded, 1)
			assert.Equal(t, events.OrderCreatedEvent, recorded[0].EventType)
		})
	}
}

func TestOrderRecord_HappyPathTransitions(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)
	rec.ClearEvents()

	require.NoError(t, rec.MarkValidatingInventory())
	require.NoError(t, rec.MarkInventoryReserved([]string{"rsv-000001", "rsv-000002"}))
	require.NoError(t, rec.MarkPaymentProcessing())
	require.NoError(t, rec.MarkPaymentConfirmed("pay-000001"))
	require.NoError(t, rec.MarkConfirmed())
	require.NoError(t, rec.MarkFulfillmentStarted(models.GenerateUUID()))
	require.NoError(t, rec.MarkFulfillmentInProgress())
	require.NoError(t, rec.MarkShipped("TRK-20260830120000-ABCDEF01"))

	assert.Equal(t, OrderStatusShipped, rec.Status)
	assert.True(t, rec.Status.IsTerminal())
	assert.Equal(t, "pay-000001", rec.PaymentID)
	assert.Equal(t, []string{"rsv-000001", "rsv-000002"}, rec.ReservationIDs)
	assert.Equal(t, "TRK-20260830120000-ABCDEF01", rec.TrackingNumber)
	assert.Equal(t, OrderSteps[len(OrderSteps)-1], rec.CurrentStep)
	assert.Equal(t, len(OrderSteps)-1, rec.StepIndex)

	eventTypes := make([]string, 0, len(rec.Events()))
	for _, evt := range rec.Events() {
		eventTypes = append(eventTypes, evt.EventType)
	}
	assert.Equal(t, []string{
		events.OrderInventoryReservedEvent,
		events.OrderPaymentConfirmedEvent,
		events.OrderConfirmedEvent,
		events.OrderFulfillmentStartedEvent,
		events.OrderShippedEvent,
	}, eventTypes)
}

func TestOrderRecord_RejectsIllegalTransitions(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)

	// skipping straight to payment from PENDING
	assert.Error(t, rec.MarkPaymentProcessing())
	assert.Equal(t, OrderStatusPending, rec.Status)

	// shipping before fulfillment even started
	assert.Error(t, rec.MarkShipped("TRK-X"))
	assert.Equal(t, OrderStatusPending, rec.Status)
}

func TestOrderRecord_Cancellation(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)
	require.NoError(t, rec.MarkValidatingInventory())

	require.NoError(t, rec.MarkCancelled("changed my mind"))
	assert.Equal(t, OrderStatusCancelled, rec.Status)
	assert.Equal(t, "changed my mind", rec.CancellationReason)

	// cancelling a cancelled order is tolerated
	require.NoError(t, rec.MarkCancelled("changed my mind"))
	assert.Equal(t, OrderStatusCancelled, rec.Status)

	// but other terminal overwrites are not
	assert.Error(t, rec.MarkFailed("late failure"))
	assert.Equal(t, OrderStatusCancelled, rec.Status)
}

func TestOrderRecord_CannotCancelShippedOrder(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)
	require.NoError(t, rec.MarkValidatingInventory())
	require.NoError(t, rec.MarkInventoryReserved([]string{"rsv-000001"}))
	require.NoError(t, rec.MarkPaymentProcessing())
	require.NoError(t, rec.MarkPaymentConfirmed("pay-000001"))
	require.NoError(t, rec.MarkConfirmed())
	require.NoError(t, rec.MarkFulfillmentStarted(models.GenerateUUID()))
	require.NoError(t, rec.MarkFulfillmentInProgress())
	require.NoError(t, rec.MarkShipped("TRK-X"))

	assert.Error(t, rec.MarkCancelled("too late"))
	assert.Equal(t, OrderStatusShipped, rec.Status)
}

func TestOrderRecord_MergeUpdate(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)

	newAddress := testAddress()
	newAddress.Line1 = "2 Elm St"
	newEmail := "ada.lovelace@example.com"
	newMethod := "debit_card"

	require.NoError(t, rec.MergeUpdate(&newAddress, &newEmail, nil, &newMethod))
	assert.Equal(t, "2 Elm St", rec.ShippingAddress.Line1)
	assert.Equal(t, newEmail, rec.Customer.Email)
	assert.Equal(t, "Ada Lovelace", rec.Customer.Name)
	assert.Equal(t, "debit_card", rec.PaymentMethod)
}

func TestOrderRecord_AddressImmutableAfterFulfillmentStarts(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)
	require.NoError(t, rec.MarkValidatingInventory())
	require.NoError(t, rec.MarkInventoryReserved([]string{"rsv-000001"}))
	require.NoError(t, rec.MarkPaymentProcessing())
	require.NoError(t, rec.MarkPaymentConfirmed("pay-000001"))
	require.NoError(t, rec.MarkConfirmed())
	require.NoError(t, rec.MarkFulfillmentStarted(models.GenerateUUID()))

	newAddress := testAddress()
	newAddress.Line1 = "2 Elm St"
	err = rec.MergeUpdate(&newAddress, nil, nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
	assert.Equal(t, "1 Main St", rec.ShippingAddress.Line1)

	// non-address fields stay mutable until the order terminates
	newEmail := "still.mutable@example.com"
	require.NoError(t, rec.MergeUpdate(nil, &newEmail, nil, nil))
	assert.Equal(t, newEmail, rec.Customer.Email)
}

func TestOrderRecord_ClearReservations(t *testing.T) {
	rec, err := NewOrderRecord(testCustomer(), testItems(), testAddress(), "credit_card")
	require.NoError(t, err)
	require.NoError(t, rec.MarkValidatingInventory())
	require.NoError(t, rec.MarkInventoryReserved([]string{"rsv-000001", "rsv-000002"}))

	rec.ClearReservations()
	assert.Empty(t, rec.ReservationIDs)
}
