package application

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/fulfillment-service/domain"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
	"github.com/orderflow/fulfillment-system/shared/saga"
	"github.com/orderflow/fulfillment-system/shared/services"
)

// Suspension points of the fulfillment process
const (
	WaitWorkOrder saga.WaitState = "awaiting_work_order"
	WaitResume    saga.WaitState = "awaiting_resume"
)

// Timings holds the simulated warehouse delays. Tests inject zeros.
type Timings struct {
	PickDelayPerItem  time.Duration
	QualityCheckDelay time.Duration
	PackingDelay      time.Duration
	PickupWaitDelay   time.Duration
}

// DefaultTimings returns production timing constants
func DefaultTimings() Timings {
	return Timings{
		PickDelayPerItem:  300 * time.Millisecond,
		QualityCheckDelay: 500 * time.Millisecond,
		PackingDelay:      700 * time.Millisecond,
		PickupWaitDelay:   500 * time.Millisecond,
	}
}

// Collaborators are the external capabilities a fulfillment process
// depends on. Publisher may be nil.
type Collaborators struct {
	Inventory   services.InventoryService
	Notifier    services.NotificationService
	Coordinator coordinator.Coordinator
	Publisher   events.Publisher
	Logger      zerolog.Logger
}

// FulfillmentProcess drives a single fulfillment from WAITING to a
// terminal status. All state lives on the instance; signal handlers and
// the main sequence synchronize through the guard only.
type FulfillmentProcess struct {
	id      models.ID
	deps    Collaborators
	timings Timings

	guard *saga.Guard

	// guarded state
	rec             *domain.FulfillmentRecord
	started         bool
	cancelRequested bool
	cancelReason    string
}

// NewFulfillmentProcess builds an instance at WAITING
func NewFulfillmentProcess(id models.ID, deps Collaborators, timings Timings) *FulfillmentProcess {
	rec := domain.NewFulfillmentRecord(id)
	return &FulfillmentProcess{
		id:      rec.FulfillmentID,
		deps:    deps,
		timings: timings,
		guard:   saga.NewGuard(),
		rec:     rec,
	}
}

// Factory returns a coordinator factory for the fulfillment process
// type. Fulfillment instances take no initial arguments; the work order
// arrives as a signal.
func Factory(deps Collaborators, timings Timings) coordinator.Factory {
	return func(instanceID models.ID, _ json.RawMessage) (coordinator.Process, error) {
		return NewFulfillmentProcess(instanceID, deps, timings), nil
	}
}

// HandleSignal implements coordinator.Process. Handlers are atomic
// run-to-completion mutations; duplicates are tolerated.
func (p *FulfillmentProcess) HandleSignal(env protocol.Envelope) error {
	sig, err := env.Decode()
	if err != nil {
		return err
	}

	switch s := sig.(type) {
	case *protocol.StartFulfillment:
		var attachErr error
		p.guard.Mutate(func() {
			if p.started || p.rec.Status.IsTerminal() {
				return // duplicate start
			}
			if attachErr = p.rec.AttachRequest(s.Request); attachErr == nil {
				p.started = true
			}
		})
		return attachErr

	case *protocol.Cancel:
		p.guard.Mutate(func() {
			if p.rec.Status.IsTerminal() {
				return
			}
			p.cancelRequested = true
			p.cancelReason = s.Reason
		})
		return nil

	case *protocol.Pause:
		var pauseErr error
		p.guard.Mutate(func() {
			if p.rec.Status.IsTerminal() {
				return
			}
			pauseErr = p.rec.SetPaused(true)
		})
		return pauseErr

	case *protocol.Resume:
		var resumeErr error
		p.guard.Mutate(func() {
			if p.rec.Status.IsTerminal() {
				return
			}
			resumeErr = p.rec.SetPaused(false)
		})
		return resumeErr

	case *protocol.UpdateShippingAddress:
		var updateErr error
		p.guard.Mutate(func() {
			if !p.started {
				return // no request to merge into yet
			}
			updateErr = p.rec.UpdateShippingAddress(s.Address)
		})
		return updateErr

	default:
		return errors.Errorf("fulfillment process does not accept %s signals", env.Kind)
	}
}

// HandleQuery implements coordinator.Process
func (p *FulfillmentProcess) HandleQuery(queryName string) (interface{}, error) {
	switch queryName {
	case protocol.QueryStatus:
		return p.statusView(), nil
	case protocol.QueryProgress:
		return p.progressView(), nil
	default:
		return nil, errors.Errorf("unknown fulfillment query %q", queryName)
	}
}

// StatusPaused is reported while a non-terminal fulfillment is paused.
// The underlying step position is preserved for resume.
const StatusPaused = "PAUSED"

// StatusView is the read model exposed by the status query
type StatusView struct {
	FulfillmentID     models.ID      `json:"fulfillment_id"`
	OrderID           models.ID      `json:"order_id,omitempty"`
	Status            string         `json:"status"`
	CurrentStep       string         `json:"current_step"`
	ItemsPicked       int            `json:"items_picked"`
	TotalItems        int            `json:"total_items"`
	TrackingNumber    string         `json:"tracking_number,omitempty"`
	Carrier           string         `json:"carrier,omitempty"`
	EstimatedDelivery time.Time      `json:"estimated_delivery,omitempty"`
	ShippingAddress   models.Address `json:"shipping_address,omitempty"`
	Paused            bool           `json:"paused"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	ErrorDetail       string         `json:"error_detail,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (p *FulfillmentProcess) statusView() StatusView {
	var view StatusView
	p.guard.Read(func() {
		status := string(p.rec.Status)
		if p.rec.Paused && !p.rec.Status.IsTerminal() {
			status = StatusPaused
		}
		view = StatusView{
			FulfillmentID:      p.rec.FulfillmentID,
			OrderID:            p.rec.OrderID,
			Status:             status,
			CurrentStep:        p.rec.CurrentStep,
			ItemsPicked:        p.rec.ItemsPicked,
			TotalItems:         p.rec.TotalItems,
			TrackingNumber:     p.rec.TrackingNumber,
			Carrier:            p.rec.Carrier,
			EstimatedDelivery:  p.rec.EstimatedDelivery,
			ShippingAddress:    p.rec.ShippingAddress,
			Paused:             p.rec.Paused,
			CancellationReason: p.rec.CancellationReason,
			ErrorDetail:        p.rec.ErrorDetail,
			UpdatedAt:          p.rec.Timestamps.UpdatedAt,
		}
	})
	return view
}

// ProgressView is the read model exposed by the progress query
type ProgressView struct {
	Status      string `json:"status"`
	CurrentStep string `json:"current_step"`
	Percent     int    `json:"percent"`
	ItemsPicked int    `json:"items_picked"`
	TotalItems  int    `json:"total_items"`
}

func (p *FulfillmentProcess) progressView() ProgressView {
	var view ProgressView
	p.guard.Read(func() {
		status := string(p.rec.Status)
		if p.rec.Paused && !p.rec.Status.IsTerminal() {
			status = StatusPaused
		}
		view = ProgressView{
			Status:      status,
			CurrentStep: p.rec.CurrentStep,
			Percent:     p.rec.ProgressPercent(),
			ItemsPicked: p.rec.ItemsPicked,
			TotalItems:  p.rec.TotalItems,
		}
	})
	return view
}
