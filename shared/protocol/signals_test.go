package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/fulfillment-system/shared/models"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	sender := models.GenerateUUID()
	address := models.Address{
		Line1:      "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
	}

	tests := []struct {
		name   string
		signal Signal
	}{
		{
			name: "start fulfillment",
			signal: &StartFulfillment{Request: FulfillmentRequest{
				OrderID: models.GenerateUUID(),
				Customer: models.Customer{
					ID:    models.GenerateUUID(),
					Name:  "Ada Lovelace",
					Email: "ada@example.com",
				},
				Items: []models.LineItem{
					{ProductID: "widget-basic", Name: "Basic Widget", Quantity: 2, UnitPrice: models.NewMoney(1000, "USD")},
				},
				ShippingAddress: address,
				PaymentID:       "pay-000001",
				ReservationIDs:  []string{"rsv-000001", "rsv-000002"},
				OrderProcessID:  models.GenerateUUID(),
			}},
		},
		{
			name:   "cancel",
			signal: &Cancel{Reason: "changed my mind"},
		},
		{
			name:   "pause",
			signal: &Pause{},
		},
		{
			name:   "resume",
			signal: &Resume{},
		},
		{
			name:   "update order",
			signal: &UpdateOrder{ShippingAddress: &address, CustomerEmail: stringPtr("new@example.com")},
		},
		{
			name:   "update shipping address",
			signal: &UpdateShippingAddress{Address: address},
		},
		{
			name: "fulfillment completed",
			signal: &FulfillmentCompleted{Outcome: FulfillmentOutcome{
				OrderID:           models.GenerateUUID(),
				Outcome:           OutcomeShipped,
				TrackingNumber:    "TRK-20260830120000-ABCDEF01",
				ShippingCarrier:   "FastShip Express",
				EstimatedDelivery: time.Now().UTC().Truncate(time.Second),
				ItemsPicked:       3,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(sender, tt.signal)
			require.NoError(t, err)
			assert.Equal(t, tt.signal.Kind(), env.Kind)
			assert.Equal(t, EnvelopeVersion, env.Version)
			assert.Equal(t, sender, env.Sender)

			// through the wire and back
			wire, err := json.Marshal(env)
			require.NoError(t, err)
			var received Envelope
			require.NoError(t, json.Unmarshal(wire, &received))

			decoded, err := received.Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.signal, decoded)
		})
	}
}

func TestEnvelope_DecodeFailsClosed(t *testing.T) {
	tests := []struct {
		name        string
		envelope    Envelope
		expectedErr error
	}{
		{
			name:        "unknown kind",
			envelope:    Envelope{Kind: "reboot_warehouse", Version: EnvelopeVersion},
			expectedErr: ErrUnknownKind,
		},
		{
			name:        "future version",
			envelope:    Envelope{Kind: KindCancel, Version: EnvelopeVersion + 1},
			expectedErr: ErrUnsupportedVersion,
		},
		{
			name:        "zero version",
			envelope:    Envelope{Kind: KindCancel, Version: 0},
			expectedErr: ErrUnsupportedVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := tt.envelope.Decode()
			assert.Nil(t, sig)
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestEnvelope_DecodeRejectsMalformedPayload(t *testing.T) {
	env := Envelope{
		Kind:    KindCancel,
		Version: EnvelopeVersion,
		Payload: json.RawMessage(`{"reason": 42`),
	}
	sig, err := env.Decode()
	assert.Nil(t, sig)
	assert.Error(t, err)
}

func stringPtr(s string) *string {
	return &s
}
