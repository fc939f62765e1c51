package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/orderflow/fulfillment-system/order-service/application"
	"github.com/orderflow/fulfillment-system/order-service/handlers"
	"github.com/orderflow/fulfillment-system/order-service/infrastructure"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	sharedinfra "github.com/orderflow/fulfillment-system/shared/infrastructure"
	"github.com/orderflow/fulfillment-system/shared/services"
	"github.com/orderflow/fulfillment-system/shared/telemetry"
)

// Shared are the components the saga host constructs once and passes to
// both services.
type Shared struct {
	Coordinator coordinator.Coordinator
	Inventory   services.InventoryService
	Payment     services.PaymentService
	Notifier    services.NotificationService
	Logger      zerolog.Logger
}

type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Repositories
	OrderRepository *infrastructure.PostgresOrderRepository

	// Process factory, registered with the coordinator runtime by the host
	Factory coordinator.Factory

	// Use Cases
	SubmitOrder      *application.SubmitOrder
	CancelOrder      *application.CancelOrder
	UpdateOrder      *application.UpdateOrder
	GetOrderStatus   *application.GetOrderStatus
	GetOrderProgress *application.GetOrderProgress

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Infrastructure
	EventPublisher *sharedinfra.SNSPublisherAdapter

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, cfg *Config, shared Shared) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.Telemetry.Enabled {
		telConfig := telemetry.SagaHostConfig.WithOTLPEndpoint(cfg.Telemetry.OTLPEndpoint)
		tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
		if err != nil {
			log.Printf("Failed to initialize telemetry: %v", err)
			// Continue without telemetry rather than failing
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	db, err := sqlx.Connect("postgres", cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	deps.DB = db

	eventPublisher, err := sharedinfra.NewSNSPublisherAdapter(ctx, cfg.AWS.SNSTopicArn, shared.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create SNS publisher: %w", err)
	}
	deps.EventPublisher = eventPublisher

	deps.OrderRepository = infrastructure.NewPostgresOrderRepository(db)

	deps.Factory = application.Factory(application.Collaborators{
		Inventory:   shared.Inventory,
		Payment:     shared.Payment,
		Notifier:    shared.Notifier,
		Coordinator: shared.Coordinator,
		Publisher:   eventPublisher,
		Archive:     deps.OrderRepository,
		Logger:      shared.Logger,
	}, application.Timings{StepDuration: cfg.Saga.StepDuration()})

	deps.SubmitOrder = application.NewSubmitOrder(shared.Coordinator)
	deps.CancelOrder = application.NewCancelOrder(shared.Coordinator)
	deps.UpdateOrder = application.NewUpdateOrder(shared.Coordinator)
	deps.GetOrderStatus = application.NewGetOrderStatus(shared.Coordinator)
	deps.GetOrderProgress = application.NewGetOrderProgress(shared.Coordinator)

	deps.OrderHandlers = handlers.NewOrderHandlers(
		deps.SubmitOrder,
		deps.CancelOrder,
		deps.UpdateOrder,
		deps.GetOrderStatus,
		deps.GetOrderProgress,
	)

	return deps, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.EventPublisher != nil {
		if err := d.EventPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}
	return nil
}
