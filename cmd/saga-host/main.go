package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	fulfillmentconfig "github.com/orderflow/fulfillment-system/fulfillment-service/config"
	fulfillmenthandlers "github.com/orderflow/fulfillment-system/fulfillment-service/handlers"
	orderconfig "github.com/orderflow/fulfillment-system/order-service/config"
	"github.com/orderflow/fulfillment-system/shared/coordinator"
	"github.com/orderflow/fulfillment-system/shared/protocol"
	"github.com/orderflow/fulfillment-system/shared/retry"
	"github.com/orderflow/fulfillment-system/shared/services"
	"github.com/orderflow/fulfillment-system/shared/telemetry"
)

// defaultStock seeds the simulated warehouse
var defaultStock = map[string]int{
	"widget-basic":   100,
	"widget-pro":     50,
	"gadget-mini":    75,
	"gadget-max":     25,
	"doohickey-v2":   200,
	"contraption-xl": 10,
}

func main() {
	cfg, err := orderconfig.ReadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("starting saga host")

	fulfillmentCfg, err := fulfillmentconfig.ReadConfig()
	if err != nil {
		log.Fatalf("Failed to load fulfillment config: %v", err)
	}

	// Every collaborator call goes through the boundary retry policy;
	// the sagas themselves only see success or exhausted failure.
	policy := retry.DefaultPolicy()
	inventory := services.NewRetryingInventory(services.NewStockInventory(defaultStock), policy)
	payment := services.NewRetryingPayment(services.NewSimulatedGateway(), policy)
	notifier := services.NewRetryingNotifier(services.NewLogNotifier(logger), policy)

	runtime := coordinator.NewRuntime(logger)

	ctx := context.Background()
	orderDeps, err := orderconfig.BuildDependencies(ctx, cfg, orderconfig.Shared{
		Coordinator: runtime,
		Inventory:   inventory,
		Payment:     payment,
		Notifier:    notifier,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to build order dependencies: %v", err)
	}
	defer func() {
		if err := orderDeps.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing dependencies")
		}
	}()

	fulfillmentDeps := fulfillmentconfig.BuildDependencies(fulfillmentCfg, fulfillmentconfig.Shared{
		Coordinator: runtime,
		Inventory:   inventory,
		Notifier:    notifier,
		Publisher:   orderDeps.EventPublisher,
		Logger:      logger,
	})

	runtime.RegisterProcessType(protocol.ProcessTypeOrder, orderDeps.Factory)
	runtime.RegisterProcessType(protocol.ProcessTypeFulfillment, fulfillmentDeps.Factory)

	router := setupRouter(orderDeps, fulfillmentDeps)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down saga host")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("coordinator shutdown failed")
	}

	logger.Info().Msg("saga host stopped")
}

func setupRouter(orderDeps *orderconfig.Dependencies, fulfillmentDeps *fulfillmentconfig.Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	if orderDeps.Telemetry != nil {
		r.Use(telemetry.Middleware(orderDeps.Telemetry))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", fulfillmenthandlers.NewMetricsHandler())

	orderDeps.OrderHandlers.RegisterRoutes(r)
	fulfillmentDeps.FulfillmentHandlers.RegisterRoutes(r)

	return r
}
