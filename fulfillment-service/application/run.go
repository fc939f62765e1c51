package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/fulfillment-service/domain"
	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// errCancelled aborts the main sequence after a cancellation was
// observed and unwound at a checkpoint.
var errCancelled = errors.New("fulfillment cancelled")

// Run implements coordinator.Process. The sequence only advances between
// checkpoints; pause and cancel take effect there, never mid-step.
// A terminal status is always reached and exactly one completion signal
// is sent afterwards.
func (p *FulfillmentProcess) Run(ctx context.Context) {
	logger := p.deps.Logger.With().Str("fulfillment_id", p.id.String()).Logger()

	err := p.run(ctx)
	switch {
	case err == nil, errors.Is(err, errCancelled):
		// terminal status already applied
	default:
		logger.Error().Err(err).Msg("fulfillment process failed")
		var cancelled bool
		var reason string
		p.guard.Read(func() {
			cancelled = p.cancelRequested
			reason = p.cancelReason
		})
		if cancelled {
			// an observed cancellation takes precedence over the error
			p.unwind(ctx, reason)
		} else {
			p.guard.Mutate(func() {
				if !p.rec.Status.IsTerminal() {
					_ = p.rec.MarkFailed(err.Error())
				}
			})
		}
	}

	p.finish(ctx)
}

func (p *FulfillmentProcess) run(ctx context.Context) error {
	// suspend until the work order or a cancellation arrives
	if err := p.guard.WaitUntil(ctx, WaitWorkOrder, func() bool {
		return p.started || p.cancelRequested
	}); err != nil {
		return errors.Wrap(err, "interrupted while awaiting work order")
	}

	if err := p.checkpoint(ctx); err != nil {
		return err
	}

	if err := p.pickItems(ctx); err != nil {
		return err
	}

	// quality check happens between picking and packing without a
	// state of its own
	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	p.sleep(ctx, p.timings.QualityCheckDelay)

	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	p.guard.Mutate(func() {
		_ = p.rec.MarkPacking()
	})
	p.flushEvents(ctx)
	p.sleep(ctx, p.timings.PackingDelay)

	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	p.guard.Mutate(func() {
		_ = p.rec.MarkReadyToShip()
	})
	p.flushEvents(ctx)
	p.sleep(ctx, p.timings.PickupWaitDelay)

	if err := p.checkpoint(ctx); err != nil {
		return err
	}
	p.guard.Mutate(func() {
		_ = p.rec.MarkShipped()
	})
	p.flushEvents(ctx)
	return nil
}

func (p *FulfillmentProcess) pickItems(ctx context.Context) error {
	var items []models.LineItem
	p.guard.Mutate(func() {
		_ = p.rec.MarkPicking()
		items = append([]models.LineItem(nil), p.rec.Items...)
	})
	p.flushEvents(ctx)

	for _, item := range items {
		if err := p.checkpoint(ctx); err != nil {
			return err
		}
		p.sleep(ctx, p.timings.PickDelayPerItem)
		p.guard.Mutate(func() {
			_ = p.rec.RecordItemPicked(item.Quantity)
		})
	}
	return nil
}

// checkpoint is where pause and cancel take effect. While paused the
// sequence suspends with its step position intact; resume continues
// exactly where it left off.
func (p *FulfillmentProcess) checkpoint(ctx context.Context) error {
	if err := p.guard.WaitUntil(ctx, WaitResume, func() bool {
		return !p.rec.Paused || p.cancelRequested
	}); err != nil {
		return errors.Wrap(err, "interrupted while paused")
	}

	var cancelled bool
	var reason string
	p.guard.Read(func() {
		cancelled = p.cancelRequested
		reason = p.cancelReason
	})
	if !cancelled {
		return nil
	}

	p.unwind(ctx, reason)
	return errCancelled
}

// unwind applies the cancellation compensation path: release any held
// reservations, notify the customer if picking had begun, and terminate
// the record. Every action is best-effort.
func (p *FulfillmentProcess) unwind(ctx context.Context, reason string) {
	logger := p.deps.Logger.With().Str("fulfillment_id", p.id.String()).Logger()

	var reservationIDs []string
	var itemsPicked int
	var customer models.Customer
	var orderID models.ID
	p.guard.Read(func() {
		reservationIDs = append([]string(nil), p.rec.ReservationIDs...)
		itemsPicked = p.rec.ItemsPicked
		customer = p.rec.Customer
		orderID = p.rec.OrderID
	})

	if len(reservationIDs) > 0 {
		if err := p.deps.Inventory.Release(ctx, reservationIDs); err != nil {
			logger.Warn().Err(err).Msg("failed to release reservations")
		}
	}

	// No email when nothing was picked yet; the customer never saw
	// work begin.
	if itemsPicked > 0 {
		if err := p.deps.Notifier.SendCancellation(ctx, customer, orderID, reason); err != nil {
			logger.Warn().Err(err).Msg("cancellation email failed")
		}
	}

	p.guard.Mutate(func() {
		_ = p.rec.MarkCancelled(reason)
	})
}

// finish flushes events, records the outcome metric and sends the
// single best-effort completion signal back to the originating order
// process.
func (p *FulfillmentProcess) finish(ctx context.Context) {
	p.flushEvents(ctx)

	var status domain.FulfillmentStatus
	var orderProcessID models.ID
	var outcome protocol.FulfillmentOutcome
	p.guard.Read(func() {
		status = p.rec.Status
		orderProcessID = p.rec.OrderProcessID
		outcome = p.rec.Outcome()
	})
	fulfillmentsTerminal.WithLabelValues(string(status)).Inc()

	if orderProcessID.IsEmpty() {
		return
	}

	env, err := protocol.NewEnvelope(p.id, &protocol.FulfillmentCompleted{Outcome: outcome})
	if err == nil {
		err = p.deps.Coordinator.Signal(ctx, orderProcessID, env)
	}
	if err != nil {
		// the local terminal status stays authoritative even if the
		// order side never learns of it
		p.deps.Logger.Warn().
			Err(err).
			Str("fulfillment_id", p.id.String()).
			Str("order_process_id", orderProcessID.String()).
			Msg("failed to deliver completion signal")
	}
}

// flushEvents publishes recorded lifecycle events, best-effort
func (p *FulfillmentProcess) flushEvents(ctx context.Context) {
	var pending []*events.Event
	p.guard.Mutate(func() {
		pending = p.rec.Events()
		p.rec.ClearEvents()
	})
	if p.deps.Publisher == nil || len(pending) == 0 {
		return
	}
	if err := p.deps.Publisher.Publish(ctx, pending...); err != nil {
		p.deps.Logger.Warn().Err(err).Msg("failed to publish fulfillment events")
	}
}

func (p *FulfillmentProcess) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
