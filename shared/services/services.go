// Package services defines the external collaborator capabilities the
// sagas consume. The sagas stay agnostic to the implementations; retry
// policy lives in the decorators here, never in saga logic.
package services

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/models"
)

// Business rejections surfaced by collaborators. These are terminal from
// the saga's perspective and are never retried.
var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrUnknownPayment     = errors.New("unknown payment id")
	ErrUnknownProduct     = errors.New("unknown product")
	ErrReservationFailed  = errors.New("reservation failed")
	ErrRefundExceedsCharge = errors.New("refund exceeds charged amount")
)

// Availability reports stock for a single product
type Availability struct {
	ProductID string `json:"product_id"`
	Available bool   `json:"available"`
	InStock   int    `json:"in_stock"`
}

// InventoryService checks, reserves, confirms and releases stock.
// Release is an idempotent no-op for already-released or unknown ids.
type InventoryService interface {
	Check(ctx context.Context, items []models.LineItem) ([]Availability, error)
	Reserve(ctx context.Context, items []models.LineItem, orderID models.ID) ([]string, error)
	Confirm(ctx context.Context, reservationIDs []string) error
	Release(ctx context.Context, reservationIDs []string) error
}

// PaymentService charges and refunds
type PaymentService interface {
	Charge(ctx context.Context, orderID models.ID, amount models.Money, customerID models.ID, method string) (string, error)
	Refund(ctx context.Context, paymentID string, amount models.Money) error
}

// NotificationService sends customer emails. All calls are
// fire-and-forget from the saga's perspective: failures are logged by
// the caller and never alter saga state.
type NotificationService interface {
	SendOrderConfirmation(ctx context.Context, customer models.Customer, orderID models.ID) error
	SendPaymentConfirmation(ctx context.Context, customer models.Customer, orderID models.ID, amount models.Money) error
	SendShippingNotification(ctx context.Context, customer models.Customer, orderID models.ID, trackingNumber string) error
	SendCancellation(ctx context.Context, customer models.Customer, orderID models.ID, reason string) error
}
