package application

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/order-service/domain"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
	"github.com/orderflow/fulfillment-system/shared/saga"
	"github.com/orderflow/fulfillment-system/shared/services"
)

// Suspension points of the order process
const (
	WaitFulfillmentCompletion saga.WaitState = "awaiting_fulfillment_completion"
)

// Timings holds the duration constants of the order process
type Timings struct {
	// StepDuration is the per-step constant used for estimated
	// completion, not an enforced timeout.
	StepDuration time.Duration
}

// DefaultTimings returns production timing constants
func DefaultTimings() Timings {
	return Timings{StepDuration: 30 * time.Second}
}

// OrderRequest is the initial argument of an order process instance
type OrderRequest struct {
	Customer        models.Customer   `json:"customer"`
	Items           []models.LineItem `json:"items"`
	ShippingAddress models.Address    `json:"shipping_address"`
	PaymentMethod   string            `json:"payment_method"`
}

// Collaborators are the external capabilities an order process depends
// on. Publisher and Archive may be nil; both are best-effort surfaces.
type Collaborators struct {
	Inventory   services.InventoryService
	Payment     services.PaymentService
	Notifier    services.NotificationService
	Coordinator coordinator.Coordinator
	Publisher   events.Publisher
	Archive     domain.OrderRepository
	Logger      zerolog.Logger
}

// OrderProcess drives a single order from PENDING to a terminal status.
// All state lives on the instance; signal handlers and the main
// sequence synchronize through the guard only.
type OrderProcess struct {
	id      models.ID
	deps    Collaborators
	timings Timings

	guard *saga.Guard

	// guarded state
	rec             *domain.OrderRecord
	cancelRequested bool
	cancelReason    string
	outcome         *protocol.FulfillmentOutcome
}

// NewOrderProcess builds an instance from a validated request
func NewOrderProcess(id models.ID, req OrderRequest, deps Collaborators, timings Timings) (*OrderProcess, error) {
	rec, err := domain.NewOrderRecord(req.Customer, req.Items, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order request")
	}

	return &OrderProcess{
		id:      id,
		deps:    deps,
		timings: timings,
		guard:   saga.NewGuard(),
		rec:     rec,
	}, nil
}

// Factory returns a coordinator factory for the order process type
func Factory(deps Collaborators, timings Timings) coordinator.Factory {
	return func(instanceID models.ID, initialArgs json.RawMessage) (coordinator.Process, error) {
		var req OrderRequest
		if err := json.Unmarshal(initialArgs, &req); err != nil {
			return nil, errors.Wrap(err, "failed to decode order request")
		}
		return NewOrderProcess(instanceID, req, deps, timings)
	}
}

// HandleSignal implements coordinator.Process. Handlers are atomic
// run-to-completion mutations; duplicates are tolerated.
func (p *OrderProcess) HandleSignal(env protocol.Envelope) error {
	sig, err := env.Decode()
	if err != nil {
		return err
	}

	switch s := sig.(type) {
	case *protocol.Cancel:
		p.guard.Mutate(func() {
			if p.rec.Status.IsTerminal() {
				return
			}
			p.cancelRequested = true
			p.cancelReason = s.Reason
		})
		return nil

	case *protocol.UpdateOrder:
		var mergeErr error
		p.guard.Mutate(func() {
			if p.rec.Status.IsTerminal() {
				mergeErr = errors.Errorf("order %s is already %s", p.rec.OrderID, p.rec.Status)
				return
			}
			mergeErr = p.rec.MergeUpdate(s.ShippingAddress, s.CustomerEmail, s.CustomerName, s.PaymentMethod)
		})
		return mergeErr

	case *protocol.FulfillmentCompleted:
		p.guard.Mutate(func() {
			if p.rec.Status.IsTerminal() || p.outcome != nil {
				return // duplicate or late delivery
			}
			outcome := s.Outcome
			p.outcome = &outcome
		})
		return nil

	default:
		return errors.Errorf("order process does not accept %s signals", env.Kind)
	}
}

// HandleQuery implements coordinator.Process
func (p *OrderProcess) HandleQuery(queryName string) (interface{}, error) {
	switch queryName {
	case protocol.QueryStatus:
		return p.statusView(), nil
	case protocol.QueryProgress:
		return p.progressView(), nil
	default:
		return nil, errors.Errorf("unknown order query %q", queryName)
	}
}

// StatusView is the read model exposed by the status query
type StatusView struct {
	OrderID               models.ID          `json:"order_id"`
	Status                domain.OrderStatus `json:"status"`
	CurrentStep           string             `json:"current_step"`
	PaymentID             string             `json:"payment_id,omitempty"`
	ReservationIDs        []string           `json:"reservation_ids,omitempty"`
	TrackingNumber        string             `json:"tracking_number,omitempty"`
	FulfillmentInstanceID models.ID          `json:"fulfillment_instance_id,omitempty"`
	CancellationReason    string             `json:"cancellation_reason,omitempty"`
	ErrorDetail           string             `json:"error_detail,omitempty"`
	TotalAmount           models.Money       `json:"total_amount"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

func (p *OrderProcess) statusView() StatusView {
	var view StatusView
	p.guard.Read(func() {
		view = StatusView{
			OrderID:               p.rec.OrderID,
			Status:                p.rec.Status,
			CurrentStep:           p.rec.CurrentStep,
			PaymentID:             p.rec.PaymentID,
			ReservationIDs:        append([]string(nil), p.rec.ReservationIDs...),
			TrackingNumber:        p.rec.TrackingNumber,
			FulfillmentInstanceID: p.rec.FulfillmentInstanceID,
			CancellationReason:    p.rec.CancellationReason,
			ErrorDetail:           p.rec.ErrorDetail,
			TotalAmount:           p.rec.TotalAmount,
			UpdatedAt:             p.rec.Timestamps.UpdatedAt,
		}
	})
	return view
}

// ProgressView is the read model exposed by the progress query
type ProgressView struct {
	Status              domain.OrderStatus `json:"status"`
	CurrentStep         string             `json:"current_step"`
	Percent             int                `json:"percent"`
	EstimatedCompletion time.Time          `json:"estimated_completion"`
}

func (p *OrderProcess) progressView() ProgressView {
	var view ProgressView
	p.guard.Read(func() {
		total := len(domain.OrderSteps)
		percent := (p.rec.StepIndex + 1) * 100 / total
		remaining := total - 1 - p.rec.StepIndex
		if remaining < 0 {
			remaining = 0
		}
		view = ProgressView{
			Status:              p.rec.Status,
			CurrentStep:         p.rec.CurrentStep,
			Percent:             percent,
			EstimatedCompletion: time.Now().Add(time.Duration(remaining) * p.timings.StepDuration),
		}
	})
	return view
}
