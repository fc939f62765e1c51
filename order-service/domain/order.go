package domain

import (
	"context"

	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/models"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	OrderStatusPending               OrderStatus = "PENDING"
	OrderStatusValidatingInventory   OrderStatus = "VALIDATING_INVENTORY"
	OrderStatusInventoryReserved     OrderStatus = "INVENTORY_RESERVED"
	OrderStatusPaymentProcessing     OrderStatus = "PAYMENT_PROCESSING"
	OrderStatusPaymentConfirmed      OrderStatus = "PAYMENT_CONFIRMED"
	OrderStatusConfirmed             OrderStatus = "CONFIRMED"
	OrderStatusFulfillmentStarted    OrderStatus = "FULFILLMENT_STARTED"
	OrderStatusFulfillmentInProgress OrderStatus = "FULFILLMENT_IN_PROGRESS"
	OrderStatusShipped               OrderStatus = "SHIPPED"
	OrderStatusCancelled             OrderStatus = "CANCELLED"
	OrderStatusFailed                OrderStatus = "FAILED"
)

// IsTerminal reports whether the status ends the order lifecycle
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusShipped || s == OrderStatusCancelled || s == OrderStatusFailed
}

// forward lists the only legal predecessor-to-successor transitions of
// the happy path. Cancelled and Failed are reachable from any
// non-terminal status.
var forward = map[OrderStatus]OrderStatus{
	OrderStatusPending:               OrderStatusValidatingInventory,
	OrderStatusValidatingInventory:   OrderStatusInventoryReserved,
	OrderStatusInventoryReserved:     OrderStatusPaymentProcessing,
	OrderStatusPaymentProcessing:     OrderStatusPaymentConfirmed,
	OrderStatusPaymentConfirmed:      OrderStatusConfirmed,
	OrderStatusConfirmed:             OrderStatusFulfillmentStarted,
	OrderStatusFulfillmentStarted:    OrderStatusFulfillmentInProgress,
	OrderStatusFulfillmentInProgress: OrderStatusShipped,
}

// OrderSteps is the fixed ordered step list progress is reported
// against.
var OrderSteps = []string{
	"Validating inventory",
	"Reserving inventory",
	"Processing payment",
	"Confirming order",
	"Starting fulfillment",
	"Fulfilling order",
	"Completed",
}

// OrderRecord is the single persisted record of one order. It is
// mutated exclusively by the order process instance that owns it.
type OrderRecord struct {
	OrderID               models.ID         `json:"order_id"`
	Customer              models.Customer   `json:"customer"`
	Items                 []models.LineItem `json:"items"`
	TotalAmount           models.Money      `json:"total_amount"`
	ShippingAddress       models.Address    `json:"shipping_address"`
	PaymentMethod         string            `json:"payment_method"`
	Status                OrderStatus       `json:"status"`
	CurrentStep           string            `json:"current_step"`
	StepIndex             int               `json:"step_index"`
	PaymentID             string            `json:"payment_id,omitempty"`
	ReservationIDs        []string          `json:"reservation_ids,omitempty"`
	TrackingNumber        string            `json:"tracking_number,omitempty"`
	FulfillmentInstanceID models.ID         `json:"fulfillment_instance_id,omitempty"`
	CancellationReason    string            `json:"cancellation_reason,omitempty"`
	ErrorDetail           string            `json:"error_detail,omitempty"`
	Timestamps            models.Timestamps `json:"timestamps"`
	Version               models.Version    `json:"version"`

	recorded []*events.Event
}

// NewOrderRecord creates a record at PENDING
func NewOrderRecord(customer models.Customer, items []models.LineItem, address models.Address, paymentMethod string) (*OrderRecord, error) {
	if len(items) == 0 {
		return nil, errors.New("order must have at least one item")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, errors.Errorf("item %s has non-positive quantity", item.ProductID)
		}
		if !item.UnitPrice.IsPositive() {
			return nil, errors.Errorf("item %s has non-positive unit price", item.ProductID)
		}
	}
	if customer.Email == "" {
		return nil, errors.New("customer email is required")
	}

	total := models.NewMoney(0, items[0].UnitPrice.Currency)
	for _, item := range items {
		sum, err := total.Add(item.Subtotal())
		if err != nil {
			return nil, errors.Wrap(err, "mixed currencies in order items")
		}
		total = sum
	}

	rec := &OrderRecord{
		OrderID:         models.GenerateUUID(),
		Customer:        customer,
		Items:           items,
		TotalAmount:     total,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		Status:          OrderStatusPending,
		CurrentStep:     "Order received",
		Timestamps:      models.NewTimestamps(),
		Version:         models.NewVersion(),
	}

	rec.record(events.NewEvent(rec.OrderID, events.OrderCreatedEvent, OrderCreatedData{
		OrderID:     rec.OrderID,
		CustomerID:  customer.ID,
		TotalAmount: total,
		ItemCount:   len(items),
	}))
	return rec, nil
}

// advance moves the record forward one state along the happy path
func (r *OrderRecord) advance(to OrderStatus, step string, stepIndex int) error {
	if forward[r.Status] != to {
		return errors.Errorf("illegal order transition %s -> %s", r.Status, to)
	}
	r.Status = to
	r.CurrentStep = step
	r.StepIndex = stepIndex
	r.touch()
	return nil
}

// MarkValidatingInventory begins the forward sequence
func (r *OrderRecord) MarkValidatingInventory() error {
	return r.advance(OrderStatusValidatingInventory, OrderSteps[0], 0)
}

// MarkInventoryReserved stores reservation ids
func (r *OrderRecord) MarkInventoryReserved(reservationIDs []string) error {
	if err := r.advance(OrderStatusInventoryReserved, OrderSteps[1], 1); err != nil {
		return err
	}
	r.ReservationIDs = append([]string(nil), reservationIDs...)
	r.record(events.NewEvent(r.OrderID, events.OrderInventoryReservedEvent, OrderReservedData{
		OrderID:        r.OrderID,
		ReservationIDs: r.ReservationIDs,
	}))
	return nil
}

// MarkPaymentProcessing enters the payment step
func (r *OrderRecord) MarkPaymentProcessing() error {
	return r.advance(OrderStatusPaymentProcessing, OrderSteps[2], 2)
}

// MarkPaymentConfirmed stores the payment id
func (r *OrderRecord) MarkPaymentConfirmed(paymentID string) error {
	if err := r.advance(OrderStatusPaymentConfirmed, OrderSteps[2], 2); err != nil {
		return err
	}
	r.PaymentID = paymentID
	r.record(events.NewEvent(r.OrderID, events.OrderPaymentConfirmedEvent, OrderPaymentData{
		OrderID:   r.OrderID,
		PaymentID: paymentID,
		Amount:    r.TotalAmount,
	}))
	return nil
}

// MarkConfirmed confirms the reservation and the order
func (r *OrderRecord) MarkConfirmed() error {
	if err := r.advance(OrderStatusConfirmed, OrderSteps[3], 3); err != nil {
		return err
	}
	r.record(events.NewEvent(r.OrderID, events.OrderConfirmedEvent, OrderCreatedData{
		OrderID:     r.OrderID,
		CustomerID:  r.Customer.ID,
		TotalAmount: r.TotalAmount,
		ItemCount:   len(r.Items),
	}))
	return nil
}

// MarkFulfillmentStarted stores the fulfillment instance id
func (r *OrderRecord) MarkFulfillmentStarted(fulfillmentInstanceID models.ID) error {
	if err := r.advance(OrderStatusFulfillmentStarted, OrderSteps[4], 4); err != nil {
		return err
	}
	r.FulfillmentInstanceID = fulfillmentInstanceID
	r.record(events.NewEvent(r.OrderID, events.OrderFulfillmentStartedEvent, OrderFulfillmentData{
		OrderID:               r.OrderID,
		FulfillmentInstanceID: fulfillmentInstanceID,
	}))
	return nil
}

// MarkFulfillmentInProgress enters the delegated fulfillment phase
func (r *OrderRecord) MarkFulfillmentInProgress() error {
	return r.advance(OrderStatusFulfillmentInProgress, OrderSteps[5], 5)
}

// MarkShipped completes the order with the tracking number reported by
// fulfillment.
func (r *OrderRecord) MarkShipped(trackingNumber string) error {
	if err := r.advance(OrderStatusShipped, OrderSteps[6], 6); err != nil {
		return err
	}
	r.TrackingNumber = trackingNumber
	r.record(events.NewEvent(r.OrderID, events.OrderShippedEvent, OrderShippedData{
		OrderID:        r.OrderID,
		TrackingNumber: trackingNumber,
	}))
	return nil
}

// MarkCancelled terminates the order with a cancellation reason.
// Re-applying with the same reason is a no-op beyond the overwrite.
func (r *OrderRecord) MarkCancelled(reason string) error {
	if r.Status.IsTerminal() {
		if r.Status == OrderStatusCancelled {
			r.CancellationReason = reason
			return nil
		}
		return errors.Errorf("cannot cancel order in terminal status %s", r.Status)
	}
	r.Status = OrderStatusCancelled
	r.CurrentStep = "Cancelled"
	r.CancellationReason = reason
	r.touch()
	r.record(events.NewEvent(r.OrderID, events.OrderCancelledEvent, OrderTerminalData{
		OrderID: r.OrderID,
		Reason:  reason,
	}))
	return nil
}

// MarkFailed terminates the order with an error detail
func (r *OrderRecord) MarkFailed(detail string) error {
	if r.Status.IsTerminal() {
		return errors.Errorf("cannot fail order in terminal status %s", r.Status)
	}
	r.Status = OrderStatusFailed
	r.CurrentStep = "Failed"
	r.ErrorDetail = detail
	r.touch()
	r.record(events.NewEvent(r.OrderID, events.OrderFailedEvent, OrderTerminalData{
		OrderID: r.OrderID,
		Reason:  detail,
	}))
	return nil
}

// ClearReservations drops reservation ids after compensation released
// them.
func (r *OrderRecord) ClearReservations() {
	r.ReservationIDs = nil
	r.touch()
}

// MergeUpdate applies partial field updates without altering lifecycle
// status. The shipping address is mutable only until fulfillment starts.
func (r *OrderRecord) MergeUpdate(address *models.Address, email, name, paymentMethod *string) error {
	if address != nil {
		if r.Status == OrderStatusFulfillmentStarted || r.Status == OrderStatusFulfillmentInProgress || r.Status.IsTerminal() {
			return errors.Errorf("shipping address is immutable once fulfillment has started")
		}
		r.ShippingAddress = *address
	}
	if email != nil {
		r.Customer.Email = *email
	}
	if name != nil {
		r.Customer.Name = *name
	}
	if paymentMethod != nil {
		r.PaymentMethod = *paymentMethod
	}
	r.touch()
	return nil
}

func (r *OrderRecord) touch() {
	r.Timestamps = r.Timestamps.Update()
	r.Version = r.Version.Update()
}

// Events returns recorded lifecycle events
func (r *OrderRecord) Events() []*events.Event {
	return r.recorded
}

// ClearEvents clears recorded lifecycle events
func (r *OrderRecord) ClearEvents() {
	r.recorded = nil
}

func (r *OrderRecord) record(event *events.Event) {
	r.recorded = append(r.recorded, event)
}

// Event data structures
type OrderCreatedData struct {
	OrderID     models.ID    `json:"order_id"`
	CustomerID  models.ID    `json:"customer_id"`
	TotalAmount models.Money `json:"total_amount"`
	ItemCount   int          `json:"item_count"`
}

type OrderReservedData struct {
	OrderID        models.ID `json:"order_id"`
	ReservationIDs []string  `json:"reservation_ids"`
}

type OrderPaymentData struct {
	OrderID   models.ID    `json:"order_id"`
	PaymentID string       `json:"payment_id"`
	Amount    models.Money `json:"amount"`
}

type OrderFulfillmentData struct {
	OrderID               models.ID `json:"order_id"`
	FulfillmentInstanceID models.ID `json:"fulfillment_instance_id"`
}

type OrderShippedData struct {
	OrderID        models.ID `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
}

type OrderTerminalData struct {
	OrderID models.ID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// OrderRepository archives order records once they reach a terminal
// status.
type OrderRepository interface {
	Save(ctx context.Context, record *OrderRecord) error
	FindByID(ctx context.Context, id models.ID) (*OrderRecord, error)
}
