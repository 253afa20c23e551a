package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoff-tech/event-pipeline/pkg/broker"
	"github.com/zoff-tech/event-pipeline/pkg/config"
	"github.com/zoff-tech/event-pipeline/pkg/counter"
	"github.com/zoff-tech/event-pipeline/pkg/dashboard"
	"github.com/zoff-tech/event-pipeline/pkg/dlq"
	"github.com/zoff-tech/event-pipeline/pkg/gateway"
	"github.com/zoff-tech/event-pipeline/pkg/server"
	"github.com/zoff-tech/event-pipeline/pkg/store"
	"github.com/zoff-tech/event-pipeline/pkg/telemetry"
	"github.com/zoff-tech/event-pipeline/pkg/worker"
)

func main() {
	ctx := context.Background()

	// Load configuration from file or environment
	cfg, err := config.LoadFromFile("./cmd/event-pipeline")
	if err != nil {
		log.Fatal("Error loading configuration: ", err)
	}

	// Validate the configuration
	err = cfg.Validate()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Initialize telemetry (tracing)
	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		log.Fatal("Failed to initialize telemetry: ", err)
	}
	defer shutdownTelemetry() // Ensure telemetry is properly shut down on exit

	// Initialize the repository
	repo, err := store.NewRepository(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize repository: ", err)
	}

	// Initialize the broker publisher, shared by the gateway and DLQ replay
	publisher, err := broker.NewPublisher(ctx, &cfg.Broker)
	if err != nil {
		log.Fatal("Failed to initialize publisher: ", err)
	}
	defer publisher.Close()

	throughput := counter.New(repo, cfg.CounterShards)

	gatewayHandler := gateway.NewHandler(publisher, cfg.Broker.Topic, cfg.PublishTimeout)
	workerHandler := worker.NewHandler(repo, throughput, cfg.StoreTimeout, cfg.Debug.PoisonEventType)
	dashboardHandler := dashboard.NewHandler(repo, throughput, cfg.StoreTimeout)

	if cfg.Debug.PoisonEventType != "" {
		log.Printf("WARNING: poison event hook active for eventType=%q", cfg.Debug.PoisonEventType)
	}

	// The dead-letter source is optional; without a configured subscription
	// the replay API is simply not mounted.
	var dlqHandler *dlq.Handler
	if cfg.Broker.DeadLetterSubscription != "" {
		source, err := broker.NewDeadLetterSource(ctx, &cfg.Broker)
		if err != nil {
			log.Fatal("Failed to initialize dead-letter source: ", err)
		}
		defer source.Close()
		dlqHandler = dlq.NewHandler(dlq.NewController(source, publisher, cfg.Broker.Topic), cfg.PublishTimeout)
	} else {
		log.Println("No dead-letter subscription configured, replay API disabled")
	}

	router := server.NewRouter(gatewayHandler, workerHandler, dashboardHandler, dlqHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Event pipeline listening on :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error: ", err)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
