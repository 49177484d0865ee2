package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"dev/bravebird/guest-registration-walkthrough/pkg/config"
	"dev/bravebird/guest-registration-walkthrough/pkg/database"
	"dev/bravebird/guest-registration-walkthrough/pkg/logging"
	"dev/bravebird/guest-registration-walkthrough/pkg/metrics"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/activities"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/workflows"
)

func main() {
	cfg, err := config.Load(os.Getenv("WALKTHROUGH_CONFIG"))
	if err != nil {
		logging.New(logging.Config{Level: "info"}).Fatal("Failed to load configuration", zap.Error(err))
	}

	zl := logging.New(cfg.Logger)
	defer zl.Sync()

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.Temporal(zl),
	})
	if err != nil {
		zl.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// Create activities
	acts := activities.NewActivities(cfg.WalkthroughOptions(), cfg.BrowserOptions(), cfg.WaitPolicy())
	defer acts.Pool.CloseAll()

	if cfg.Database.DSN != "" {
		db, err := database.New(cfg.Database.DSN)
		if err != nil {
			zl.Warn("Failed to connect to database, running without persistence", zap.Error(err))
		} else {
			defer db.Close()
			if err := db.Migrate(context.Background()); err != nil {
				zl.Fatal("Failed to migrate database", zap.Error(err))
			}
			acts.Store = db
		}
	}

	if cfg.Metrics.Addr != "" {
		recorder, err := metrics.New(prometheus.DefaultRegisterer)
		if err != nil {
			zl.Fatal("Failed to register metrics", zap.Error(err))
		}
		acts.Observer = recorder

		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.Handler(prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			zl.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	// Sessions pin every step of a run to the worker holding its browser.
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     5,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
		EnableSessionWorker:                    true,
		MaxConcurrentSessionExecutionSize:      5,
	})

	w.RegisterWorkflowWithOptions(workflows.WalkthroughWorkflow, workflow.RegisterOptions{Name: workflows.WorkflowName})
	w.RegisterActivity(acts)

	zl.Info("Starting Temporal worker",
		zap.String("taskQueue", cfg.Temporal.TaskQueue),
		zap.String("temporalHost", cfg.Temporal.HostPort),
		zap.String("driver", cfg.Browser.Driver),
	)

	if err := w.Run(worker.InterruptCh()); err != nil {
		zl.Error("Worker failed", zap.Error(err))
	}
}
