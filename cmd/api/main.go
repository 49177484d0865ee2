package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/guest-registration-walkthrough/pkg/api"
	"dev/bravebird/guest-registration-walkthrough/pkg/config"
	"dev/bravebird/guest-registration-walkthrough/pkg/database"
	"dev/bravebird/guest-registration-walkthrough/pkg/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("WALKTHROUGH_CONFIG"))
	if err != nil {
		logging.New(logging.Config{Level: "info"}).Fatal("Failed to load configuration", zap.Error(err))
	}

	zl := logging.New(cfg.Logger)
	defer zl.Sync()
	zl.Info("Starting Guest Registration API Server")

	// Initialize database
	var store api.RunStore
	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		zl.Warn("Failed to connect to database, running without persistence", zap.Error(err))
	} else {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			zl.Fatal("Failed to migrate database", zap.Error(err))
		}
		store = db
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.Temporal(zl),
	})
	if err != nil {
		zl.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(store, temporalClient, api.Options{
		TaskQueue:     cfg.Temporal.TaskQueue,
		ScreenshotDir: cfg.Screenshot.Dir,
		Headless:      cfg.Browser.Headless,
		Logger:        zl,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		zl.Info("API server listening", zap.String("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}

	zl.Info("Server stopped")
}
