package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
)

// FulfillmentStatus represents the lifecycle status of a fulfillment
type FulfillmentStatus string

const (
	FulfillmentStatusWaiting     FulfillmentStatus = "WAITING"
	FulfillmentStatusPicking     FulfillmentStatus = "PICKING"
	FulfillmentStatusPacking     FulfillmentStatus = "PACKING"
	FulfillmentStatusReadyToShip FulfillmentStatus = "READY_TO_SHIP"
	FulfillmentStatusShipped     FulfillmentStatus = "SHIPPED"
	FulfillmentStatusCancelled   FulfillmentStatus = "CANCELLED"
	FulfillmentStatusFailed      FulfillmentStatus = "FAILED"
)

// IsTerminal reports whether the status ends the fulfillment lifecycle
func (s FulfillmentStatus) IsTerminal() bool {
	return s == FulfillmentStatusShipped || s == FulfillmentStatusCancelled || s == FulfillmentStatusFailed
}

// forward lists the only legal happy-path transitions. Cancelled and
// Failed are reachable from any non-terminal status.
var forward = map[FulfillmentStatus]FulfillmentStatus{
	FulfillmentStatusWaiting:     FulfillmentStatusPicking,
	FulfillmentStatusPicking:     FulfillmentStatusPacking,
	FulfillmentStatusPacking:     FulfillmentStatusReadyToShip,
	FulfillmentStatusReadyToShip: FulfillmentStatusShipped,
}

// FulfillmentSteps is the fixed ordered step list progress is reported
// against.
var FulfillmentSteps = []string{
	"Waiting for order",
	"Picking items",
	"Packing items",
	"Ready to ship",
	"Shipped",
}

// ShippingCarrier is the single carrier fulfillments ship with
const ShippingCarrier = "FastShip Express"

// deliveryLeadTime is added to the ship time for the delivery estimate
const deliveryLeadTime = 3 * 24 * time.Hour

// FulfillmentRecord is the single persisted record of one fulfillment.
// It is mutated exclusively by the fulfillment process instance that
// owns it.
type FulfillmentRecord struct {
	FulfillmentID     models.ID         `json:"fulfillment_id"`
	OrderID           models.ID         `json:"order_id"`
	OrderProcessID    models.ID         `json:"order_process_id"`
	Customer          models.Customer   `json:"customer"`
	Items             []models.LineItem `json:"items"`
	ShippingAddress   models.Address    `json:"shipping_address"`
	PaymentID         string            `json:"payment_id"`
	ReservationIDs    []string          `json:"reservation_ids"`
	Status            FulfillmentStatus `json:"status"`
	Paused            bool              `json:"paused"`
	CurrentStep       string            `json:"current_step"`
	StepIndex         int               `json:"step_index"`
	ItemsPicked       int               `json:"items_picked"`
	TotalItems        int               `json:"total_items"`
	TrackingNumber    string            `json:"tracking_number,omitempty"`
	Carrier           string            `json:"carrier,omitempty"`
	EstimatedDelivery time.Time         `json:"estimated_delivery,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	ErrorDetail       string            `json:"error_detail,omitempty"`
	Timestamps        models.Timestamps `json:"timestamps"`
	Version           models.Version    `json:"version"`

	recorded []*events.Event
}

// NewFulfillmentRecord creates a record at WAITING. The work order
// arrives later through AttachRequest.
func NewFulfillmentRecord(id models.ID) *FulfillmentRecord {
	if id.IsEmpty() {
		id = models.GenerateUUID()
	}
	return &FulfillmentRecord{
		FulfillmentID: id,
		Status:        FulfillmentStatusWaiting,
		CurrentStep:   FulfillmentSteps[0],
		Timestamps:    models.NewTimestamps(),
		Version:       models.NewVersion(),
	}
}

// AttachRequest binds the work order to a waiting record
func (r *FulfillmentRecord) AttachRequest(req protocol.FulfillmentRequest) error {
	if r.Status != FulfillmentStatusWaiting {
		return errors.Errorf("fulfillment %s already started", r.FulfillmentID)
	}
	if len(req.Items) == 0 {
		return errors.New("fulfillment request has no items")
	}

	total := 0
	for _, item := range req.Items {
		total += item.Quantity
	}

	r.OrderID = req.OrderID
	r.OrderProcessID = req.OrderProcessID
	r.Customer = req.Customer
	r.Items = req.Items
	r.ShippingAddress = req.ShippingAddress
	r.PaymentID = req.PaymentID
	r.ReservationIDs = append([]string(nil), req.ReservationIDs...)
	r.TotalItems = total
	r.touch()

	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentStartedEvent, FulfillmentStartedData{
		FulfillmentID: r.FulfillmentID,
		OrderID:       r.OrderID,
		ItemCount:     len(req.Items),
		TotalUnits:    total,
	}))
	return nil
}

// advance moves the record forward one state along the happy path
func (r *FulfillmentRecord) advance(to FulfillmentStatus, step string, stepIndex int) error {
	if forward[r.Status] != to {
		return errors.Errorf("illegal fulfillment transition %s -> %s", r.Status, to)
	}
	r.Status = to
	r.CurrentStep = step
	r.StepIndex = stepIndex
	r.touch()
	return nil
}

// MarkPicking begins the picking phase
func (r *FulfillmentRecord) MarkPicking() error {
	if err := r.advance(FulfillmentStatusPicking, FulfillmentSteps[1], 1); err != nil {
		return err
	}
	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentPickingEvent, FulfillmentPhaseData{
		FulfillmentID: r.FulfillmentID,
		OrderID:       r.OrderID,
	}))
	return nil
}

// RecordItemPicked accounts for picked units and refreshes the step
// label.
func (r *FulfillmentRecord) RecordItemPicked(units int) error {
	if r.Status != FulfillmentStatusPicking {
		return errors.Errorf("cannot pick items in status %s", r.Status)
	}
	r.ItemsPicked += units
	if r.ItemsPicked > r.TotalItems {
		r.ItemsPicked = r.TotalItems
	}
	r.CurrentStep = fmt.Sprintf("Picked %d/%d items", r.ItemsPicked, r.TotalItems)
	r.touch()
	return nil
}

// MarkPacking begins the packing phase
func (r *FulfillmentRecord) MarkPacking() error {
	if err := r.advance(FulfillmentStatusPacking, FulfillmentSteps[2], 2); err != nil {
		return err
	}
	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentPackingEvent, FulfillmentPhaseData{
		FulfillmentID: r.FulfillmentID,
		OrderID:       r.OrderID,
	}))
	return nil
}

// MarkReadyToShip generates the tracking number and freezes the
// shipping address.
func (r *FulfillmentRecord) MarkReadyToShip() error {
	if err := r.advance(FulfillmentStatusReadyToShip, FulfillmentSteps[3], 3); err != nil {
		return err
	}
	r.TrackingNumber = NewTrackingNumber()
	r.Carrier = ShippingCarrier
	r.EstimatedDelivery = time.Now().UTC().Add(deliveryLeadTime)
	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentReadyToShipEvent, FulfillmentShippedData{
		FulfillmentID:  r.FulfillmentID,
		OrderID:        r.OrderID,
		TrackingNumber: r.TrackingNumber,
		Carrier:        r.Carrier,
	}))
	return nil
}

// MarkShipped completes the fulfillment
func (r *FulfillmentRecord) MarkShipped() error {
	if err := r.advance(FulfillmentStatusShipped, FulfillmentSteps[4], 4); err != nil {
		return err
	}
	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentShippedEvent, FulfillmentShippedData{
		FulfillmentID:  r.FulfillmentID,
		OrderID:        r.OrderID,
		TrackingNumber: r.TrackingNumber,
		Carrier:        r.Carrier,
	}))
	return nil
}

// MarkCancelled terminates the fulfillment. Cancelling an already
// cancelled record is a no-op.
func (r *FulfillmentRecord) MarkCancelled(reason string) error {
	if r.Status == FulfillmentStatusCancelled {
		return nil
	}
	if r.Status.IsTerminal() {
		return errors.Errorf("fulfillment %s is already %s", r.FulfillmentID, r.Status)
	}
	r.Status = FulfillmentStatusCancelled
	r.Paused = false
	r.CurrentStep = "Cancelled"
	r.CancellationReason = reason
	r.touch()
	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentCancelledEvent, FulfillmentTerminalData{
		FulfillmentID: r.FulfillmentID,
		OrderID:       r.OrderID,
		Reason:        reason,
	}))
	return nil
}

// MarkFailed terminates the fulfillment with an error
func (r *FulfillmentRecord) MarkFailed(detail string) error {
	if r.Status.IsTerminal() {
		return errors.Errorf("fulfillment %s is already %s", r.FulfillmentID, r.Status)
	}
	r.Status = FulfillmentStatusFailed
	r.Paused = false
	r.CurrentStep = "Failed"
	r.ErrorDetail = detail
	r.touch()
	r.record(events.NewEvent(r.FulfillmentID, events.FulfillmentFailedEvent, FulfillmentTerminalData{
		FulfillmentID: r.FulfillmentID,
		OrderID:       r.OrderID,
		Reason:        detail,
	}))
	return nil
}

// SetPaused toggles the pause flag. Pausing a paused record or resuming
// a running one is a no-op.
func (r *FulfillmentRecord) SetPaused(paused bool) error {
	if r.Status.IsTerminal() {
		return errors.Errorf("fulfillment %s is already %s", r.FulfillmentID, r.Status)
	}
	if r.Paused == paused {
		return nil
	}
	r.Paused = paused
	r.touch()
	eventType := events.FulfillmentResumedEvent
	if paused {
		eventType = events.FulfillmentPausedEvent
	}
	r.record(events.NewEvent(r.FulfillmentID, eventType, FulfillmentPhaseData{
		FulfillmentID: r.FulfillmentID,
		OrderID:       r.OrderID,
	}))
	return nil
}

// UpdateShippingAddress replaces the destination. The address freezes
// once a tracking number exists.
func (r *FulfillmentRecord) UpdateShippingAddress(address models.Address) error {
	if r.Status.IsTerminal() {
		return errors.Errorf("fulfillment %s is already %s", r.FulfillmentID, r.Status)
	}
	if r.Status == FulfillmentStatusReadyToShip {
		return errors.New("shipping address is frozen after packing completes")
	}
	if address.IsZero() {
		return errors.New("shipping address is required")
	}
	r.ShippingAddress = address
	r.touch()
	return nil
}

// ProgressPercent reports completion as the larger of phase progress
// and picked-unit progress, so a long pick phase still moves the
// number.
func (r *FulfillmentRecord) ProgressPercent() int {
	if r.Status == FulfillmentStatusShipped {
		return 100
	}
	stepPercent := r.StepIndex * 100 / (len(FulfillmentSteps) - 1)
	itemsPercent := 0
	if r.TotalItems > 0 {
		itemsPercent = r.ItemsPicked * 100 / r.TotalItems
	}
	if itemsPercent > stepPercent {
		return itemsPercent
	}
	return stepPercent
}

// Outcome builds the terminal snapshot reported back to the order side
func (r *FulfillmentRecord) Outcome() protocol.FulfillmentOutcome {
	outcome := protocol.FulfillmentOutcome{
		OrderID:            r.OrderID,
		TrackingNumber:     r.TrackingNumber,
		ShippingCarrier:    r.Carrier,
		EstimatedDelivery:  r.EstimatedDelivery,
		ItemsPicked:        r.ItemsPicked,
		CancellationReason: r.CancellationReason,
		ErrorDetail:        r.ErrorDetail,
	}
	switch r.Status {
	case FulfillmentStatusShipped:
		outcome.Outcome = protocol.OutcomeShipped
	case FulfillmentStatusCancelled:
		outcome.Outcome = protocol.OutcomeCancelled
	default:
		outcome.Outcome = protocol.OutcomeFailed
	}
	return outcome
}

// Events returns recorded events
func (r *FulfillmentRecord) Events() []*events.Event {
	return r.recorded
}

// ClearEvents clears recorded events
func (r *FulfillmentRecord) ClearEvents() {
	r.recorded = nil
}

func (r *FulfillmentRecord) record(event *events.Event) {
	r.recorded = append(r.recorded, event)
}

func (r *FulfillmentRecord) touch() {
	r.Timestamps = r.Timestamps.Update()
	r.Version = r.Version.Update()
}

// NewTrackingNumber generates a carrier tracking number
func NewTrackingNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TRK-%s-%s", time.Now().UTC().Format("20060102150405"), suffix)
}

// FulfillmentStartedData is the payload of fulfillment.started
type FulfillmentStartedData struct {
	FulfillmentID models.ID `json:"fulfillment_id"`
	OrderID       models.ID `json:"order_id"`
	ItemCount     int       `json:"item_count"`
	TotalUnits    int       `json:"total_units"`
}

// FulfillmentPhaseData is the payload of phase transition events
type FulfillmentPhaseData struct {
	FulfillmentID models.ID `json:"fulfillment_id"`
	OrderID       models.ID `json:"order_id"`
}

// FulfillmentShippedData is the payload of ready-to-ship and shipped
// events.
type FulfillmentShippedData struct {
	FulfillmentID  models.ID `json:"fulfillment_id"`
	OrderID        models.ID `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
}

// FulfillmentTerminalData is the payload of cancelled and failed events
type FulfillmentTerminalData struct {
	FulfillmentID models.ID `json:"fulfillment_id"`
	OrderID       models.ID `json:"order_id"`
	Reason        string    `json:"reason"`
}
