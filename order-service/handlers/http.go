package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/order-service/application"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
)

// OrderHandlers contains order HTTP handlers
type OrderHandlers struct {
	submitOrder *application.SubmitOrder
	cancelOrder *application.CancelOrder
	updateOrder *application.UpdateOrder
	getStatus   *application.GetOrderStatus
	getProgress *application.GetOrderProgress
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(
	submitOrder *application.SubmitOrder,
	cancelOrder *application.CancelOrder,
	updateOrder *application.UpdateOrder,
	getStatus *application.GetOrderStatus,
	getProgress *application.GetOrderProgress,
) *OrderHandlers {
	return &OrderHandlers{
		submitOrder: submitOrder,
		cancelOrder: cancelOrder,
		updateOrder: updateOrder,
		getStatus:   getStatus,
		getProgress: getProgress,
	}
}

// SubmitOrder handles order submission requests
func (h *OrderHandlers) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.SubmitOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.submitOrder.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// CancelOrder handles order cancellation requests
func (h *OrderHandlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	cmd := &application.CancelOrderCommand{OrderID: orderID, Reason: body.Reason}
	if err := h.cancelOrder.Execute(r.Context(), cmd); err != nil {
		writeCoordinatorError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// UpdateOrder handles order amendment requests
func (h *OrderHandlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	var cmd application.UpdateOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd.OrderID = orderID

	if err := h.updateOrder.Execute(r.Context(), &cmd); err != nil {
		writeCoordinatorError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetOrderStatus handles order status queries
func (h *OrderHandlers) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	view, err := h.getStatus.Execute(r.Context(), orderID)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetOrderProgress handles order progress queries
func (h *OrderHandlers) GetOrderProgress(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	view, err := h.getProgress.Execute(r.Context(), orderID)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func writeCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, coordinator.ErrUnreachable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusConflict)
	}
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.SubmitOrder)
		r.Get("/{id}/status", h.GetOrderStatus)
		r.Get("/{id}/progress", h.GetOrderProgress)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.Patch("/{id}", h.UpdateOrder)
	})
}
