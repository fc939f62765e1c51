// Package protocol defines the messages exchanged between saga process
// instances through the coordinator. Every signal is a tagged, versioned
// variant; receivers decode exhaustively and fail closed on kinds or
// versions they do not understand.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/models"
)

// Process type names known to the coordinator
const (
	ProcessTypeOrder       = "order"
	ProcessTypeFulfillment = "fulfillment"
)

// Query names exposed by both process types
const (
	QueryStatus   = "status"
	QueryProgress = "progress"
)

// SignalKind tags a signal envelope
type SignalKind string

const (
	KindStartFulfillment      SignalKind = "start_fulfillment"
	KindCancel                SignalKind = "cancel"
	KindPause                 SignalKind = "pause"
	KindResume                SignalKind = "resume"
	KindUpdateOrder           SignalKind = "update_order"
	KindUpdateShippingAddress SignalKind = "update_shipping_address"
	KindFulfillmentCompleted  SignalKind = "fulfillment_completed"
)

// EnvelopeVersion is the current wire version of signal envelopes
const EnvelopeVersion = 1

var (
	ErrUnknownKind        = errors.New("unknown signal kind")
	ErrUnsupportedVersion = errors.New("unsupported signal version")
)

// Envelope is the wire form of a signal. Payload shape is determined by Kind.
type Envelope struct {
	Kind    SignalKind      `json:"kind"`
	Version int             `json:"version"`
	Sender  models.ID       `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Signal is the decoded form of an envelope payload
type Signal interface {
	Kind() SignalKind
}

// StartFulfillment carries the immutable handoff snapshot from an order
// process to a fulfillment process.
type StartFulfillment struct {
	Request FulfillmentRequest `json:"request"`
}

func (StartFulfillment) Kind() SignalKind { return KindStartFulfillment }

// Cancel requests cooperative cancellation. Re-applying a cancel with the
// same reason is harmless.
type Cancel struct {
	Reason string `json:"reason"`
}

func (Cancel) Kind() SignalKind { return KindCancel }

// Pause suspends a fulfillment process at its next checkpoint
type Pause struct{}

func (Pause) Kind() SignalKind { return KindPause }

// Resume releases a paused fulfillment process
type Resume struct{}

func (Resume) Kind() SignalKind { return KindResume }

// UpdateOrder merges partial fields into an order record without altering
// its lifecycle status. Nil fields are left untouched.
type UpdateOrder struct {
	ShippingAddress *models.Address `json:"shipping_address,omitempty"`
	CustomerEmail   *string         `json:"customer_email,omitempty"`
	CustomerName    *string         `json:"customer_name,omitempty"`
	PaymentMethod   *string         `json:"payment_method,omitempty"`
}

func (UpdateOrder) Kind() SignalKind { return KindUpdateOrder }

// UpdateShippingAddress replaces the shipping address of a fulfillment
// request that has already been received.
type UpdateShippingAddress struct {
	Address models.Address `json:"address"`
}

func (UpdateShippingAddress) Kind() SignalKind { return KindUpdateShippingAddress }

// FulfillmentCompleted notifies the originating order process of the
// terminal outcome of its fulfillment.
type FulfillmentCompleted struct {
	Outcome FulfillmentOutcome `json:"outcome"`
}

func (FulfillmentCompleted) Kind() SignalKind { return KindFulfillmentCompleted }

// FulfillmentRequest is the snapshot an order process hands to a
// fulfillment process. OrderProcessID is a weak back-reference used only
// to route the completion signal.
type FulfillmentRequest struct {
	OrderID         models.ID         `json:"order_id"`
	Customer        models.Customer   `json:"customer"`
	Items           []models.LineItem `json:"items"`
	ShippingAddress models.Address    `json:"shipping_address"`
	PaymentID       string            `json:"payment_id"`
	ReservationIDs  []string          `json:"reservation_ids"`
	OrderProcessID  models.ID         `json:"order_process_id"`
}

// Terminal fulfillment outcomes carried by FulfillmentCompleted
const (
	OutcomeShipped   = "shipped"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// FulfillmentOutcome is the terminal snapshot of a fulfillment record
type FulfillmentOutcome struct {
	OrderID            models.ID `json:"order_id"`
	Outcome            string    `json:"outcome"`
	TrackingNumber     string    `json:"tracking_number,omitempty"`
	ShippingCarrier    string    `json:"shipping_carrier,omitempty"`
	EstimatedDelivery  time.Time `json:"estimated_delivery,omitempty"`
	ItemsPicked        int       `json:"items_picked"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	ErrorDetail        string    `json:"error_detail,omitempty"`
}

// NewEnvelope wraps a signal into its wire form
func NewEnvelope(sender models.ID, sig Signal) (Envelope, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return Envelope{}, errors.Wrap(err, "failed to marshal signal payload")
	}
	return Envelope{
		Kind:    sig.Kind(),
		Version: EnvelopeVersion,
		Sender:  sender,
		Payload: payload,
	}, nil
}

// Decode turns an envelope back into a typed signal. Unknown kinds and
// versions fail closed instead of being silently dropped.
func (e Envelope) Decode() (Signal, error) {
	if e.Version != EnvelopeVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", e.Version)
	}

	var sig Signal
	switch e.Kind {
	case KindStartFulfillment:
		sig = &StartFulfillment{}
	case KindCancel:
		sig = &Cancel{}
	case KindPause:
		sig = &Pause{}
	case KindResume:
		sig = &Resume{}
	case KindUpdateOrder:
		sig = &UpdateOrder{}
	case KindUpdateShippingAddress:
		sig = &UpdateShippingAddress{}
	case KindFulfillmentCompleted:
		sig = &FulfillmentCompleted{}
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind %q", e.Kind)
	}

	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, sig); err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s payload", e.Kind)
		}
	}

	return sig, nil
}
