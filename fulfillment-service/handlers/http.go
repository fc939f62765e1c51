package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/orderflow/fulfillment-system/fulfillment-service/application"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/models"
)

// FulfillmentHandlers contains fulfillment HTTP handlers
type FulfillmentHandlers struct {
	control *application.ControlFulfillment
	get     *application.GetFulfillment
}

// NewFulfillmentHandlers creates new fulfillment handlers
func NewFulfillmentHandlers(
	control *application.ControlFulfillment,
	get *application.GetFulfillment,
) *FulfillmentHandlers {
	return &FulfillmentHandlers{control: control, get: get}
}

// GetStatus handles fulfillment status queries
func (h *FulfillmentHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.get.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetProgress handles fulfillment progress queries
func (h *FulfillmentHandlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	view, err := h.get.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// Pause handles pause requests
func (h *FulfillmentHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Resume handles resume requests
func (h *FulfillmentHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.control.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Cancel handles cancellation requests
func (h *FulfillmentHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.control.Cancel(r.Context(), chi.URLParam(r, "id"), body.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UpdateShippingAddress handles destination changes
func (h *FulfillmentHandlers) UpdateShippingAddress(w http.ResponseWriter, r *http.Request) {
	var address models.Address
	if err := json.NewDecoder(r.Body).Decode(&address); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.control.UpdateShippingAddress(r.Context(), chi.URLParam(r, "id"), address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, coordinator.ErrUnreachable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusConflict)
	}
}

// RegisterRoutes registers fulfillment routes
func (h *FulfillmentHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/fulfillments", func(r chi.Router) {
		r.Get("/{id}/status", h.GetStatus)
		r.Get("/{id}/progress", h.GetProgress)
		r.Post("/{id}/pause", h.Pause)
		r.Post("/{id}/resume", h.Resume)
		r.Post("/{id}/cancel", h.Cancel)
		r.Put("/{id}/shipping-address", h.UpdateShippingAddress)
	})
}
