package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartplug-telemetry-backend/config"
	"smartplug-telemetry-backend/internal/aggregate"
	"smartplug-telemetry-backend/internal/api"
	"smartplug-telemetry-backend/internal/db"
	"smartplug-telemetry-backend/internal/ecoflow"
	"smartplug-telemetry-backend/internal/forward"
	"smartplug-telemetry-backend/internal/ingest"
	"smartplug-telemetry-backend/internal/retention"
	"smartplug-telemetry-backend/internal/sched"
	"smartplug-telemetry-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "smartplugd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Vendor.AccessKey == "" || cfg.Vendor.SecretKey == "" {
		logger.Fatalf("vendor access_key and secret_key must be configured")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Vendor client and pipeline services
	vendorClient := ecoflow.NewClient(&cfg.Vendor)
	ingestor := ingest.NewService(appStore, vendorClient)
	aggregator := aggregate.NewService(appStore, cfg.WorkerPool.Size)
	retentionSvc := retention.NewService(appStore)
	forwarder := forward.NewService(&cfg.Downstream, appStore)

	// Run the periodic jobs in the background
	runner := sched.NewRunner(cfg, ingestor, aggregator, retentionSvc, forwarder)
	go runner.Run(ctx)

	// Initialize router
	router := api.NewRouter(&cfg.Server, vendorClient)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
