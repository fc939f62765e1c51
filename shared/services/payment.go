package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/models"
)

// DeclinedMethod is a payment method name the gateway always declines,
// used to exercise the payment-failure compensation path.
const DeclinedMethod = "declined_card"

// SimulatedGateway is an in-memory PaymentService. Charges succeed
// deterministically unless the method is DeclinedMethod.
type SimulatedGateway struct {
	mu      sync.Mutex
	charges map[string]charge
	nextSeq int
}

type charge struct {
	orderID  models.ID
	amount   models.Money
	refunded int64
}

// NewSimulatedGateway creates an empty gateway
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{charges: make(map[string]charge)}
}

// Charge charges the customer and returns a payment id
func (g *SimulatedGateway) Charge(ctx context.Context, orderID models.ID, amount models.Money, customerID models.ID, method string) (string, error) {
	if !amount.IsPositive() {
		return "", errors.Wrap(ErrPaymentDeclined, "amount must be positive")
	}
	if method == DeclinedMethod {
		return "", errors.Wrapf(ErrPaymentDeclined, "method %s rejected by issuer", method)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextSeq++
	paymentID := fmt.Sprintf("pay-%06d", g.nextSeq)
	g.charges[paymentID] = charge{orderID: orderID, amount: amount}

	return paymentID, nil
}

// Refund refunds part or all of a charge. Unknown payment ids fail.
func (g *SimulatedGateway) Refund(ctx context.Context, paymentID string, amount models.Money) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.charges[paymentID]
	if !ok {
		return errors.Wrapf(ErrUnknownPayment, "payment %s", paymentID)
	}
	if c.refunded+amount.Amount > c.amount.Amount {
		return errors.Wrapf(ErrRefundExceedsCharge, "payment %s", paymentID)
	}

	c.refunded += amount.Amount
	g.charges[paymentID] = c
	return nil
}

// Charged reports whether a payment id exists, for inspection
func (g *SimulatedGateway) Charged(paymentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.charges[paymentID]
	return ok
}
