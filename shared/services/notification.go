package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/shared/models"
)

// LogNotifier is a NotificationService that writes every email to the
// log instead of sending it.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier writing to the given logger
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, customer models.Customer, orderID models.ID) error {
	n.logger.Info().
		Str("email", customer.Email).
		Str("order_id", orderID.String()).
		Msg("order confirmation sent")
	return nil
}

func (n *LogNotifier) SendPaymentConfirmation(ctx context.Context, customer models.Customer, orderID models.ID, amount models.Money) error {
	n.logger.Info().
		Str("email", customer.Email).
		Str("order_id", orderID.String()).
		Int64("amount", amount.Amount).
		Str("currency", amount.Currency).
		Msg("payment confirmation sent")
	return nil
}

func (n *LogNotifier) SendShippingNotification(ctx context.Context, customer models.Customer, orderID models.ID, trackingNumber string) error {
	n.logger.Info().
		Str("email", customer.Email).
		Str("order_id", orderID.String()).
		Str("tracking_number", trackingNumber).
		Msg("shipping notification sent")
	return nil
}

func (n *LogNotifier) SendCancellation(ctx context.Context, customer models.Customer, orderID models.ID, reason string) error {
	n.logger.Info().
		Str("email", customer.Email).
		Str("order_id", orderID.String()).
		Str("reason", reason).
		Msg("cancellation email sent")
	return nil
}
