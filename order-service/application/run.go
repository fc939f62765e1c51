package application

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/order-service/domain"
	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// errCancelled aborts the forward sequence after a cancellation was
// observed and unwound at a checkpoint.
var errCancelled = errors.New("order cancelled")

// Run implements coordinator.Process. It drives the forward sequence,
// unwinding through best-effort compensation on failure or cancellation.
// A terminal status is always reached.
func (p *OrderProcess) Run(ctx context.Context) {
	logger := p.deps.Logger.With().Str("order_id", p.rec.OrderID.String()).Logger()

	err := p.run(ctx)
	switch {
	case err == nil, errors.Is(err, errCancelled):
		// terminal status already applied
	default:
		logger.Error().Err(err).Msg("order process failed")
		p.guard.Mutate(func() {
			if !p.rec.Status.IsTerminal() {
				_ = p.rec.MarkFailed(err.Error())
			}
		})
	}

	p.finish(ctx)
}

func (p *OrderProcess) run(ctx context.Context) error {
	// Step 1: check availability for every line item
	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	if err := p.checkInventory(ctx); err != nil {
		return err
	}

	// Step 2: reserve all items
	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	if err := p.reserveInventory(ctx); err != nil {
		return err
	}

	// Step 3: charge the customer
	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	if err := p.processPayment(ctx); err != nil {
		return err
	}

	// Step 4: confirm the reservation and the order
	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	if err := p.confirmReservation(ctx); err != nil {
		return err
	}

	// Step 5: hand off to a fulfillment process
	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	if err := p.startFulfillment(ctx); err != nil {
		return err
	}

	// Step 6: suspend until the completion signal or a cancellation
	return p.awaitFulfillment(ctx)
}

// checkpoint observes a pending cancellation at a step boundary and, if
// one is set, unwinds and terminates the order.
func (p *OrderProcess) checkpoint(ctx context.Context) error {
	var cancelled bool
	var reason string
	p.guard.Read(func() {
		cancelled = p.cancelRequested
		reason = p.cancelReason
	})
	if !cancelled {
		return nil
	}

	p.compensate(ctx, reason)
	p.guard.Mutate(func() {
		_ = p.rec.MarkCancelled(reason)
	})
	return errCancelled
}

func (p *OrderProcess) checkInventory(ctx context.Context) error {
	p.guard.Mutate(func() {
		_ = p.rec.MarkValidatingInventory()
	})
	p.flushEvents(ctx)

	availability, err := p.deps.Inventory.Check(ctx, p.rec.Items)
	if err != nil {
		p.fail(ctx, errors.Wrap(err, "inventory check failed").Error())
		return errors.Wrap(err, "inventory check failed")
	}

	var missing []string
	for _, av := range availability {
		if !av.Available {
			missing = append(missing, av.ProductID)
		}
	}
	if len(missing) > 0 {
		detail := "INSUFFICIENT_INVENTORY: " + strings.Join(missing, ", ")
		p.fail(ctx, detail)
		return errors.New(detail)
	}
	return nil
}

func (p *OrderProcess) reserveInventory(ctx context.Context) error {
	reservationIDs, err := p.deps.Inventory.Reserve(ctx, p.rec.Items, p.rec.OrderID)
	if err != nil {
		// The inventory contract is all-or-nothing; anything handed
		// back before the failure is released defensively.
		if len(reservationIDs) > 0 {
			p.releaseReservations(ctx, reservationIDs)
		}
		p.fail(ctx, errors.Wrap(err, "inventory reservation failed").Error())
		return errors.Wrap(err, "inventory reservation failed")
	}

	p.guard.Mutate(func() {
		_ = p.rec.MarkInventoryReserved(reservationIDs)
	})
	p.flushEvents(ctx)
	return nil
}

func (p *OrderProcess) processPayment(ctx context.Context) error {
	var customerID models.ID
	var method string
	p.guard.Mutate(func() {
		_ = p.rec.MarkPaymentProcessing()
		customerID = p.rec.Customer.ID
		method = p.rec.PaymentMethod
	})

	paymentID, err := p.deps.Payment.Charge(ctx, p.rec.OrderID, p.rec.TotalAmount, customerID, method)
	if err != nil {
		p.releaseReservations(ctx, p.rec.ReservationIDs)
		p.guard.Mutate(func() {
			p.rec.ClearReservations()
		})
		p.fail(ctx, errors.Wrap(err, "payment failed").Error())
		return errors.Wrap(err, "payment failed")
	}

	p.guard.Mutate(func() {
		_ = p.rec.MarkPaymentConfirmed(paymentID)
	})
	p.flushEvents(ctx)
	return nil
}

func (p *OrderProcess) confirmReservation(ctx context.Context) error {
	if err := p.deps.Inventory.Confirm(ctx, p.rec.ReservationIDs); err != nil {
		p.compensate(ctx, "reservation confirmation failed")
		p.fail(ctx, errors.Wrap(err, "reservation confirmation failed").Error())
		return errors.Wrap(err, "reservation confirmation failed")
	}

	p.guard.Mutate(func() {
		_ = p.rec.MarkConfirmed()
	})
	p.flushEvents(ctx)
	return nil
}

func (p *OrderProcess) startFulfillment(ctx context.Context) error {
	var request protocol.FulfillmentRequest
	p.guard.Read(func() {
		request = protocol.FulfillmentRequest{
			OrderID:         p.rec.OrderID,
			Customer:        p.rec.Customer,
			Items:           append([]models.LineItem(nil), p.rec.Items...),
			ShippingAddress: p.rec.ShippingAddress,
			PaymentID:       p.rec.PaymentID,
			ReservationIDs:  append([]string(nil), p.rec.ReservationIDs...),
			OrderProcessID:  p.id,
		}
	})

	fulfillmentID, err := p.deps.Coordinator.Start(ctx, protocol.ProcessTypeFulfillment, "", nil)
	if err != nil {
		p.compensate(ctx, "fulfillment handoff failed")
		p.fail(ctx, errors.Wrap(err, "failed to start fulfillment").Error())
		return errors.Wrap(err, "failed to start fulfillment")
	}

	env, err := protocol.NewEnvelope(p.id, &protocol.StartFulfillment{Request: request})
	if err != nil {
		p.compensate(ctx, "fulfillment handoff failed")
		p.fail(ctx, errors.Wrap(err, "failed to encode fulfillment request").Error())
		return errors.Wrap(err, "failed to encode fulfillment request")
	}
	if err := p.deps.Coordinator.Signal(ctx, fulfillmentID, env); err != nil {
		p.compensate(ctx, "fulfillment handoff failed")
		p.fail(ctx, errors.Wrap(err, "failed to deliver fulfillment request").Error())
		return errors.Wrap(err, "failed to deliver fulfillment request")
	}

	p.guard.Mutate(func() {
		_ = p.rec.MarkFulfillmentStarted(fulfillmentID)
		_ = p.rec.MarkFulfillmentInProgress()
	})
	p.flushEvents(ctx)
	return nil
}

// awaitFulfillment suspends until the completion signal or a
// cancellation arrives. Forward progress only resumes through one of
// those two signals.
func (p *OrderProcess) awaitFulfillment(ctx context.Context) error {
	err := p.guard.WaitUntil(ctx, WaitFulfillmentCompletion, func() bool {
		return p.outcome != nil || p.cancelRequested
	})
	if err != nil {
		p.fail(ctx, "order host shut down while awaiting fulfillment")
		return errors.Wrap(err, "interrupted while awaiting fulfillment")
	}

	var cancelled bool
	var reason string
	var outcome *protocol.FulfillmentOutcome
	p.guard.Read(func() {
		cancelled = p.cancelRequested
		reason = p.cancelReason
		outcome = p.outcome
	})

	if cancelled {
		p.compensate(ctx, reason)
		p.guard.Mutate(func() {
			_ = p.rec.MarkCancelled(reason)
		})
		return errCancelled
	}

	return p.applyOutcome(ctx, *outcome)
}

// applyOutcome resumes the order from the terminal fulfillment snapshot
func (p *OrderProcess) applyOutcome(ctx context.Context, outcome protocol.FulfillmentOutcome) error {
	switch outcome.Outcome {
	case protocol.OutcomeShipped:
		p.guard.Mutate(func() {
			_ = p.rec.MarkShipped(outcome.TrackingNumber)
		})
		p.sendShippedNotifications(ctx, outcome.TrackingNumber)
		return nil

	case protocol.OutcomeCancelled:
		// The fulfillment side already sent any cancellation email.
		p.refundPayment(ctx)
		p.guard.Mutate(func() {
			_ = p.rec.MarkCancelled(outcome.CancellationReason)
		})
		return nil

	case protocol.OutcomeFailed:
		p.refundPayment(ctx)
		p.guard.Mutate(func() {
			_ = p.rec.MarkFailed(outcome.ErrorDetail)
		})
		return nil

	default:
		detail := "unknown fulfillment outcome " + outcome.Outcome
		p.guard.Mutate(func() {
			_ = p.rec.MarkFailed(detail)
		})
		return errors.New(detail)
	}
}

// sendShippedNotifications fires the three notification side effects in
// fixed order. Each is best-effort.
func (p *OrderProcess) sendShippedNotifications(ctx context.Context, trackingNumber string) {
	logger := p.deps.Logger.With().Str("order_id", p.rec.OrderID.String()).Logger()

	var customer models.Customer
	var total models.Money
	p.guard.Read(func() {
		customer = p.rec.Customer
		total = p.rec.TotalAmount
	})

	if err := p.deps.Notifier.SendOrderConfirmation(ctx, customer, p.rec.OrderID); err != nil {
		logger.Warn().Err(err).Msg("order confirmation email failed")
	}
	if err := p.deps.Notifier.SendPaymentConfirmation(ctx, customer, p.rec.OrderID, total); err != nil {
		logger.Warn().Err(err).Msg("payment confirmation email failed")
	}
	if trackingNumber != "" {
		if err := p.deps.Notifier.SendShippingNotification(ctx, customer, p.rec.OrderID, trackingNumber); err != nil {
			logger.Warn().Err(err).Msg("shipping notification email failed")
		}
	}
}

// compensate unwinds the effects of completed steps. Every action is
// attempted independently; failures are logged and never re-thrown.
func (p *OrderProcess) compensate(ctx context.Context, reason string) {
	logger := p.deps.Logger.With().Str("order_id", p.rec.OrderID.String()).Logger()

	var reservationIDs []string
	var fulfillmentID models.ID
	var fulfillmentStarted bool
	p.guard.Read(func() {
		reservationIDs = append([]string(nil), p.rec.ReservationIDs...)
		fulfillmentID = p.rec.FulfillmentInstanceID
		fulfillmentStarted = !p.rec.FulfillmentInstanceID.IsEmpty()
	})

	// Once the handoff happened the fulfillment side owns the
	// reservations and releases them during its own unwind.
	if !fulfillmentStarted && len(reservationIDs) > 0 {
		p.releaseReservations(ctx, reservationIDs)
		p.guard.Mutate(func() {
			p.rec.ClearReservations()
		})
	}

	p.refundPayment(ctx)

	if fulfillmentStarted {
		env, err := protocol.NewEnvelope(p.id, &protocol.Cancel{Reason: reason})
		if err == nil {
			err = p.deps.Coordinator.Signal(ctx, fulfillmentID, env)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("failed to forward cancellation to fulfillment")
		}
	}
}

func (p *OrderProcess) releaseReservations(ctx context.Context, reservationIDs []string) {
	if len(reservationIDs) == 0 {
		return
	}
	if err := p.deps.Inventory.Release(ctx, reservationIDs); err != nil {
		p.deps.Logger.Warn().
			Err(err).
			Str("order_id", p.rec.OrderID.String()).
			Msg("failed to release reservations")
	}
}

func (p *OrderProcess) refundPayment(ctx context.Context) {
	var paymentID string
	p.guard.Read(func() {
		paymentID = p.rec.PaymentID
	})
	if paymentID == "" {
		return
	}
	if err := p.deps.Payment.Refund(ctx, paymentID, p.rec.TotalAmount); err != nil {
		p.deps.Logger.Warn().
			Err(err).
			Str("order_id", p.rec.OrderID.String()).
			Str("payment_id", paymentID).
			Msg("failed to refund payment")
	}
}

// fail applies the FAILED terminal status
func (p *OrderProcess) fail(ctx context.Context, detail string) {
	p.guard.Mutate(func() {
		if !p.rec.Status.IsTerminal() {
			_ = p.rec.MarkFailed(detail)
		}
	})
}

// flushEvents publishes recorded lifecycle events, best-effort
func (p *OrderProcess) flushEvents(ctx context.Context) {
	if p.deps.Publisher == nil {
		p.guard.Mutate(func() { p.rec.ClearEvents() })
		return
	}

	var pending []*events.Event
	p.guard.Mutate(func() {
		pending = p.rec.Events()
		p.rec.ClearEvents()
	})
	if len(pending) == 0 {
		return
	}
	if err := p.deps.Publisher.Publish(ctx, pending...); err != nil {
		p.deps.Logger.Warn().Err(err).Msg("failed to publish order events")
	}
}

// finish archives the terminal record, flushes events and records the
// outcome metric.
func (p *OrderProcess) finish(ctx context.Context) {
	p.flushEvents(ctx)

	var status domain.OrderStatus
	p.guard.Read(func() {
		status = p.rec.Status
	})
	ordersTerminal.WithLabelValues(string(status)).Inc()

	if p.deps.Archive == nil {
		return
	}
	var snapshot domain.OrderRecord
	p.guard.Read(func() {
		snapshot = *p.rec
	})
	if err := p.deps.Archive.Save(ctx, &snapshot); err != nil {
		p.deps.Logger.Warn().
			Err(err).
			Str("order_id", snapshot.OrderID.String()).
			Msg("failed to archive order record")
	}
}
