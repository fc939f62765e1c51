package config

import (
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/fulfillment-service/application"
	"github.com/orderflow/fulfillment-system/fulfillment-service/handlers"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/events"
	"github.com/orderflow/fulfillment-system/shared/services"
)

// Shared are the components the saga host constructs once and passes to
// both services.
type Shared struct {
	Coordinator coordinator.Coordinator
	Inventory   services.InventoryService
	Notifier    services.NotificationService
	Publisher   events.Publisher
	Logger      zerolog.Logger
}

type Dependencies struct {
	// Process factory, registered with the coordinator runtime by the host
	Factory coordinator.Factory

	// Use Cases
	ControlFulfillment *application.ControlFulfillment
	GetFulfillment     *application.GetFulfillment

	// HTTP Handlers
	FulfillmentHandlers *handlers.FulfillmentHandlers
}

func BuildDependencies(cfg *Config, shared Shared) *Dependencies {
	deps := &Dependencies{}

	deps.Factory = application.Factory(application.Collaborators{
		Inventory:   shared.Inventory,
		Notifier:    shared.Notifier,
		Coordinator: shared.Coordinator,
		Publisher:   shared.Publisher,
		Logger:      shared.Logger,
	}, cfg.Timings())

	deps.ControlFulfillment = application.NewControlFulfillment(shared.Coordinator)
	deps.GetFulfillment = application.NewGetFulfillment(shared.Coordinator)
	deps.FulfillmentHandlers = handlers.NewFulfillmentHandlers(deps.ControlFulfillment, deps.GetFulfillment)

	return deps
}
