package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/fulfillment-system/fulfillment-service/domain"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
	"github.com/orderflow/fulfillment-system/shared/protocol"
	"github.com/orderflow/fulfillment-system/shared/services"
)

// recordingInventory wraps the stock inventory and records every
// release call.
type recordingInventory struct {
	*services.StockInventory

	mu       sync.Mutex
	releases [][]string
}

func (r *recordingInventory) Release(ctx context.Context, reservationIDs []string) error {
	r.mu.Lock()
	r.releases = append(r.releases, append([]string(nil), reservationIDs...))
	r.mu.Unlock()
	return r.StockInventory.Release(ctx, reservationIDs)
}

func (r *recordingInventory) releaseCalls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.releases...)
}

// recordingNotifier records sent email kinds in delivery order
type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) add(kind string) {
	n.mu.Lock()
	n.sent = append(n.sent, kind)
	n.mu.Unlock()
}

func (n *recordingNotifier) SendOrderConfirmation(ctx context.Context, customer models.Customer, orderID models.ID) error {
	n.add("order_confirmation")
	return nil
}

func (n *recordingNotifier) SendPaymentConfirmation(ctx context.Context, customer models.Customer, orderID models.ID, amount models.Money) error {
	n.add("payment_confirmation")
	return nil
}

func (n *recordingNotifier) SendShippingNotification(ctx context.Context, customer models.Customer, orderID models.ID, trackingNumber string) error {
	n.add("shipping_notification")
	return nil
}

func (n *recordingNotifier) SendCancellation(ctx context.Context, customer models.Customer, orderID models.ID, reason string) error {
	n.add("cancellation")
	return nil
}

func (n *recordingNotifier) emails() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

// completionCollector stands in for an order process instance and
// captures the completion signal.
type completionCollector struct {
	mu       sync.Mutex
	outcomes []protocol.FulfillmentOutcome
}

func (c *completionCollector) Run(ctx context.Context) {
	<-ctx.Done()
}

func (c *completionCollector) HandleSignal(env protocol.Envelope) error {
	sig, err := env.Decode()
	if err != nil {
		return err
	}
	completed, ok := sig.(*protocol.FulfillmentCompleted)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.outcomes = append(c.outcomes, completed.Outcome)
	c.mu.Unlock()
	return nil
}

func (c *completionCollector) HandleQuery(queryName string) (interface{}, error) {
	return nil, nil
}

func (c *completionCollector) received() []protocol.FulfillmentOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.FulfillmentOutcome(nil), c.outcomes...)
}

type fulfillmentHarness struct {
	runtime   *coordinator.Runtime
	inventory *recordingInventory
	notifier  *recordingNotifier
	collector *completionCollector
}

func newFulfillmentHarness(stock map[string]int, timings Timings) *fulfillmentHarness {
	logger := zerolog.Nop()
	inventory := &recordingInventory{StockInventory: services.NewStockInventory(stock)}
	notifier := &recordingNotifier{}
	collector := &completionCollector{}
	runtime := coordinator.NewRuntime(logger)

	runtime.RegisterProcessType(protocol.ProcessTypeFulfillment, Factory(Collaborators{
		Inventory:   inventory,
		Notifier:    notifier,
		Coordinator: runtime,
		Logger:      logger,
	}, timings))
	runtime.RegisterProcessType(protocol.ProcessTypeOrder, func(instanceID models.ID, initialArgs json.RawMessage) (coordinator.Process, error) {
		return collector, nil
	})

	return &fulfillmentHarness{
		runtime:   runtime,
		inventory: inventory,
		notifier:  notifier,
		collector: collector,
	}
}

func (h *fulfillmentHarness) startInstance(t *testing.T) models.ID {
	t.Helper()
	id, err := h.runtime.Start(context.Background(), protocol.ProcessTypeFulfillment, "", nil)
	require.NoError(t, err)
	return id
}

// reserveAndRequest reserves stock for the items and builds the work
// order the way the order side hands it off.
func (h *fulfillmentHarness) reserveAndRequest(t *testing.T, items []models.LineItem, orderProcessID models.ID) protocol.FulfillmentRequest {
	t.Helper()
	orderID := models.GenerateUUID()
	reservationIDs, err := h.inventory.Reserve(context.Background(), items, orderID)
	require.NoError(t, err)

	return protocol.FulfillmentRequest{
		OrderID: orderID,
		Customer: models.Customer{
			ID:    models.GenerateUUID(),
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
		},
		Items: items,
		ShippingAddress: models.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "US",
		},
		PaymentID:      "pay-000001",
		ReservationIDs: reservationIDs,
		OrderProcessID: orderProcessID,
	}
}

func (h *fulfillmentHarness) attach(t *testing.T, id models.ID, req protocol.FulfillmentRequest) {
	t.Helper()
	env, err := protocol.NewEnvelope(req.OrderProcessID, &protocol.StartFulfillment{Request: req})
	require.NoError(t, err)
	require.NoError(t, h.runtime.Signal(context.Background(), id, env))
}

func (h *fulfillmentHarness) status(t *testing.T, id models.ID) StatusView {
	t.Helper()
	view, err := NewGetFulfillment(h.runtime).Status(context.Background(), id.String())
	require.NoError(t, err)
	return *view
}

func (h *fulfillmentHarness) progress(t *testing.T, id models.ID) ProgressView {
	t.Helper()
	view, err := NewGetFulfillment(h.runtime).Progress(context.Background(), id.String())
	require.NoError(t, err)
	return *view
}

func (h *fulfillmentHarness) waitTerminal(t *testing.T, id models.ID) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.runtime.Wait(ctx, id))
}

func pickStock() map[string]int {
	return map[string]int{
		"widget-basic": 10,
		"gadget-mini":  10,
		"doohickey-v2": 10,
	}
}

func singleUnitItems() []models.LineItem {
	return []models.LineItem{
		{ProductID: "widget-basic", Name: "Basic Widget", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")},
		{ProductID: "gadget-mini", Name: "Mini Gadget", Quantity: 1, UnitPrice: models.NewMoney(500, "USD")},
		{ProductID: "doohickey-v2", Name: "Doohickey", Quantity: 1, UnitPrice: models.NewMoney(500, "USD")},
	}
}

func TestFulfillmentProcess_HappyPath(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{})

	id := h.startInstance(t)
	h.attach(t, id, h.reserveAndRequest(t, singleUnitItems(), ""))
	h.waitTerminal(t, id)

	status := h.status(t, id)
	assert.Equal(t, string(domain.FulfillmentStatusShipped), status.Status)
	assert.Equal(t, 3, status.ItemsPicked)
	assert.Equal(t, 3, status.TotalItems)
	assert.NotEmpty(t, status.TrackingNumber)
	assert.Equal(t, domain.ShippingCarrier, status.Carrier)
	assert.True(t, status.EstimatedDelivery.After(time.Now().Add(71*time.Hour)))

	progress := h.progress(t, id)
	assert.Equal(t, 100, progress.Percent)

	// shipped stock stays allocated
	assert.Empty(t, h.inventory.releaseCalls())
	assert.Empty(t, h.notifier.emails())
}

func TestFulfillmentProcess_CancelBeforeStart(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{})

	id := h.startInstance(t)
	require.NoError(t, NewControlFulfillment(h.runtime).Cancel(context.Background(), id.String(), "order fell through"))
	h.waitTerminal(t, id)

	status := h.status(t, id)
	assert.Equal(t, string(domain.FulfillmentStatusCancelled), status.Status)
	assert.Equal(t, "order fell through", status.CancellationReason)
	assert.Zero(t, status.ItemsPicked)

	// nothing was reserved here, nothing to release, nobody to email
	assert.Empty(t, h.inventory.releaseCalls())
	assert.Empty(t, h.notifier.emails())
}

func TestFulfillmentProcess_CancelDuringPicking(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{PickDelayPerItem: 200 * time.Millisecond})

	id := h.startInstance(t)
	req := h.reserveAndRequest(t, singleUnitItems(), "")
	h.attach(t, id, req)

	require.Eventually(t, func() bool {
		return h.progress(t, id).ItemsPicked >= 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, NewControlFulfillment(h.runtime).Cancel(context.Background(), id.String(), "customer cancelled"))
	h.waitTerminal(t, id)

	status := h.status(t, id)
	assert.Equal(t, string(domain.FulfillmentStatusCancelled), status.Status)
	assert.GreaterOrEqual(t, status.ItemsPicked, 1)
	assert.Less(t, status.ItemsPicked, status.TotalItems)

	// one release covering every reservation, one cancellation email
	releases := h.inventory.releaseCalls()
	require.Len(t, releases, 1)
	assert.ElementsMatch(t, req.ReservationIDs, releases[0])
	assert.Equal(t, []string{"cancellation"}, h.notifier.emails())
	assert.Equal(t, 10, h.inventory.StockLevel("widget-basic"))
}

func TestFulfillmentProcess_PauseAndResumePreservesProgress(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{PickDelayPerItem: 200 * time.Millisecond})
	control := NewControlFulfillment(h.runtime)

	id := h.startInstance(t)
	h.attach(t, id, h.reserveAndRequest(t, singleUnitItems(), ""))

	require.Eventually(t, func() bool {
		return h.progress(t, id).ItemsPicked >= 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, control.Pause(context.Background(), id.String()))

	// let any in-flight pick drain, then the process is parked
	time.Sleep(300 * time.Millisecond)
	paused := h.status(t, id)
	assert.Equal(t, StatusPaused, paused.Status)
	assert.True(t, paused.Paused)

	time.Sleep(250 * time.Millisecond)
	still := h.status(t, id)
	assert.Equal(t, StatusPaused, still.Status)
	assert.Equal(t, paused.ItemsPicked, still.ItemsPicked)
	assert.Equal(t, paused.CurrentStep, still.CurrentStep)

	require.NoError(t, control.Resume(context.Background(), id.String()))
	h.waitTerminal(t, id)

	status := h.status(t, id)
	assert.Equal(t, string(domain.FulfillmentStatusShipped), status.Status)
	assert.Equal(t, status.TotalItems, status.ItemsPicked)
	assert.False(t, status.Paused)
	assert.NotEmpty(t, status.TrackingNumber)
}

func TestFulfillmentProcess_ProgressIsMonotonic(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{
		PickDelayPerItem:  30 * time.Millisecond,
		QualityCheckDelay: 30 * time.Millisecond,
		PackingDelay:      30 * time.Millisecond,
		PickupWaitDelay:   30 * time.Millisecond,
	})

	id := h.startInstance(t)
	h.attach(t, id, h.reserveAndRequest(t, singleUnitItems(), ""))

	var percents []int
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		progress := h.progress(t, id)
		percents = append(percents, progress.Percent)
		if progress.Status == string(domain.FulfillmentStatusShipped) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "progress went backwards at sample %d", i)
	}
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestFulfillmentProcess_CompletionSignalReachesOrderProcess(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{})

	orderProcessID, err := h.runtime.Start(context.Background(), protocol.ProcessTypeOrder, "", nil)
	require.NoError(t, err)

	id := h.startInstance(t)
	h.attach(t, id, h.reserveAndRequest(t, singleUnitItems(), orderProcessID))
	h.waitTerminal(t, id)

	outcomes := h.collector.received()
	require.Len(t, outcomes, 1)
	assert.Equal(t, protocol.OutcomeShipped, outcomes[0].Outcome)
	assert.NotEmpty(t, outcomes[0].TrackingNumber)
	assert.Equal(t, domain.ShippingCarrier, outcomes[0].ShippingCarrier)
	assert.Equal(t, 3, outcomes[0].ItemsPicked)
}

func TestFulfillmentProcess_DuplicateWorkOrderIgnored(t *testing.T) {
	h := newFulfillmentHarness(pickStock(), Timings{})

	id := h.startInstance(t)
	req := h.reserveAndRequest(t, singleUnitItems(), "")
	h.attach(t, id, req)
	h.waitTerminal(t, id)

	// a redelivered work order after completion changes nothing
	env, err := protocol.NewEnvelope("", &protocol.StartFulfillment{Request: req})
	require.NoError(t, err)
	require.NoError(t, h.runtime.Signal(context.Background(), id, env))

	status := h.status(t, id)
	assert.Equal(t, string(domain.FulfillmentStatusShipped), status.Status)
}

func TestFulfillmentProcess_UpdateShippingAddress(t *testing.T) {
	proc := NewFulfillmentProcess("", Collaborators{Logger: zerolog.Nop()}, Timings{})

	newAddress := models.Address{
		Line1:      "2 Elm St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62702",
		Country:    "US",
	}

	// before the work order arrives there is nothing to update
	env, err := protocol.NewEnvelope("", &protocol.UpdateShippingAddress{Address: newAddress})
	require.NoError(t, err)
	require.NoError(t, proc.HandleSignal(env))
	assert.Empty(t, proc.statusView().ShippingAddress.Line1)

	attach, err := protocol.NewEnvelope("", &protocol.StartFulfillment{Request: protocol.FulfillmentRequest{
		OrderID: models.GenerateUUID(),
		Items: []models.LineItem{
			{ProductID: "widget-basic", Quantity: 1, UnitPrice: models.NewMoney(1000, "USD")},
		},
		ShippingAddress: models.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
	}})
	require.NoError(t, err)
	require.NoError(t, proc.HandleSignal(attach))

	require.NoError(t, proc.HandleSignal(env))
	assert.Equal(t, "2 Elm St", proc.statusView().ShippingAddress.Line1)
}

func TestFulfillmentProcess_RejectsForeignSignals(t *testing.T) {
	proc := NewFulfillmentProcess("", Collaborators{Logger: zerolog.Nop()}, Timings{})

	env, err := protocol.NewEnvelope("", &protocol.UpdateOrder{})
	require.NoError(t, err)
	err = proc.HandleSignal(env)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not accept")
}
