package services

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/retry"
)

// permanent marks business rejections so the retry loop stops on them.
// Everything else is treated as transient and retried under the policy.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrPaymentDeclined),
		errors.Is(err, ErrUnknownPayment),
		errors.Is(err, ErrUnknownProduct),
		errors.Is(err, ErrReservationFailed),
		errors.Is(err, ErrRefundExceedsCharge):
		return retry.Permanent(err)
	}
	return err
}

// RetryingInventory wraps an InventoryService with the boundary retry
// policy.
type RetryingInventory struct {
	inner  InventoryService
	policy retry.Policy
}

func NewRetryingInventory(inner InventoryService, policy retry.Policy) *RetryingInventory {
	return &RetryingInventory{inner: inner, policy: policy}
}

func (s *RetryingInventory) Check(ctx context.Context, items []models.LineItem) ([]Availability, error) {
	return retry.Do(ctx, s.policy, func(ctx context.Context) ([]Availability, error) {
		av, err := s.inner.Check(ctx, items)
		return av, permanent(err)
	})
}

func (s *RetryingInventory) Reserve(ctx context.Context, items []models.LineItem, orderID models.ID) ([]string, error) {
	return retry.Do(ctx, s.policy, func(ctx context.Context) ([]string, error) {
		ids, err := s.inner.Reserve(ctx, items, orderID)
		return ids, permanent(err)
	})
}

func (s *RetryingInventory) Confirm(ctx context.Context, reservationIDs []string) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return permanent(s.inner.Confirm(ctx, reservationIDs))
	})
}

func (s *RetryingInventory) Release(ctx context.Context, reservationIDs []string) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return permanent(s.inner.Release(ctx, reservationIDs))
	})
}

// RetryingPayment wraps a PaymentService with the boundary retry policy
type RetryingPayment struct {
	inner  PaymentService
	policy retry.Policy
}

func NewRetryingPayment(inner PaymentService, policy retry.Policy) *RetryingPayment {
	return &RetryingPayment{inner: inner, policy: policy}
}

func (s *RetryingPayment) Charge(ctx context.Context, orderID models.ID, amount models.Money, customerID models.ID, method string) (string, error) {
	return retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		id, err := s.inner.Charge(ctx, orderID, amount, customerID, method)
		return id, permanent(err)
	})
}

func (s *RetryingPayment) Refund(ctx context.Context, paymentID string, amount models.Money) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return permanent(s.inner.Refund(ctx, paymentID, amount))
	})
}

// RetryingNotifier wraps a NotificationService with the boundary retry
// policy.
type RetryingNotifier struct {
	inner  NotificationService
	policy retry.Policy
}

func NewRetryingNotifier(inner NotificationService, policy retry.Policy) *RetryingNotifier {
	return &RetryingNotifier{inner: inner, policy: policy}
}

func (s *RetryingNotifier) SendOrderConfirmation(ctx context.Context, customer models.Customer, orderID models.ID) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return s.inner.SendOrderConfirmation(ctx, customer, orderID)
	})
}

func (s *RetryingNotifier) SendPaymentConfirmation(ctx context.Context, customer models.Customer, orderID models.ID, amount models.Money) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return s.inner.SendPaymentConfirmation(ctx, customer, orderID, amount)
	})
}

func (s *RetryingNotifier) SendShippingNotification(ctx context.Context, customer models.Customer, orderID models.ID, trackingNumber string) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return s.inner.SendShippingNotification(ctx, customer, orderID, trackingNumber)
	})
}

func (s *RetryingNotifier) SendCancellation(ctx context.Context, customer models.Customer, orderID models.ID, reason string) error {
	return retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return s.inner.SendCancellation(ctx, customer, orderID, reason)
	})
}
