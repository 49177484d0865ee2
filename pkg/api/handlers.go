package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/workflows"
)

// RunStore is the run history the handlers read and write
type RunStore interface {
	CreateRun(ctx context.Context, run *models.RunRecord) error
	AttachWorkflow(ctx context.Context, id, workflowID, runID string) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
}

// Options configures the handlers
type Options struct {
	TaskQueue     string
	ScreenshotDir string
	// Headless is used when a start request does not say
	Headless bool
	// StepTimeout bounds each workflow activity, in seconds
	StepTimeout  int
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Handlers contains API handlers
type Handlers struct {
	store          RunStore
	temporalClient client.Client
	opts           Options
	log            *zap.Logger
	upgrader       websocket.Upgrader
}

// NewHandlers creates new API handlers. store may be nil to run without persistence.
func NewHandlers(store RunStore, temporalClient client.Client, opts Options) *Handlers {
	if opts.TaskQueue == "" {
		opts.TaskQueue = workflows.TaskQueue
	}
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = "screenshots"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		opts:           opts,
		log:            logger.Named("api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WorkflowID returns the Temporal workflow id used for a run
func WorkflowID(runID string) string {
	return "guest-registration-" + runID
}

// Health reports liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==================== Run Handlers ====================

// StartRun starts a walkthrough workflow
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	headless := h.opts.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	runID := uuid.New().String()
	if h.store != nil {
		run := &models.RunRecord{ID: runID, Status: models.StatusPending}
		if err := h.store.CreateRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	input := models.RunInput{
		RunID:    runID,
		Headless: headless,
		Timeout:  h.opts.StepTimeout,
	}
	workflowOptions := client.StartWorkflowOptions{
		ID:        WorkflowID(runID),
		TaskQueue: h.opts.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.WorkflowName, input)
	if err != nil {
		h.log.Error("Failed to start workflow", zap.String("runID", runID), zap.Error(err))
		if h.store != nil {
			_ = h.store.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error())
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		if err := h.store.AttachWorkflow(ctx, runID, we.GetID(), we.GetRunID()); err != nil {
			h.log.Warn("Failed to record workflow ids", zap.String("runID", runID), zap.Error(err))
		}
	}

	h.log.Info("Walkthrough started", zap.String("runID", runID), zap.String("workflowID", we.GetID()))
	respondJSON(w, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListRuns lists recent runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run; an unfinished run is refreshed from the workflow's progress
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	if !run.Status.Terminal() {
		if progress, ok := h.progress(ctx, run.ID, run.TemporalWorkflowID); ok {
			run.Steps = progress.Steps
		}
	}

	respondJSON(w, run)
}

// CancelRun cancels a running workflow
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.Terminal() {
		http.Error(w, "Run already finished", http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" {
		if err := h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID); err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.UpdateRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		h.log.Warn("Failed to mark run canceled", zap.String("runID", id), zap.Error(err))
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// progress queries the workflow for the result accumulated so far
func (h *Handlers) progress(ctx context.Context, runID, workflowID string) (models.RunResult, bool) {
	if h.temporalClient == nil {
		return models.RunResult{}, false
	}
	if workflowID == "" {
		workflowID = WorkflowID(runID)
	}

	resp, err := h.temporalClient.QueryWorkflow(ctx, workflowID, "", workflows.ProgressQuery)
	if err != nil {
		return models.RunResult{}, false
	}
	var result models.RunResult
	if err := resp.Get(&result); err != nil || result.Status == "" {
		return models.RunResult{}, false
	}
	return result, true
}

// StreamRunUpdates streams run updates via WebSocket until the run reaches a terminal status
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// A hijacked connection does not cancel the request context, so the
	// read side watches for the client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// Poll for updates
	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	lastStatus := models.RunStatus("")
	lastStepCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var status models.RunStatus
			var steps []models.StepResult

			// Try to query Temporal workflow directly for real-time progress
			if result, ok := h.progress(ctx, runID, ""); ok {
				status = result.Status
				steps = result.Steps
			}

			// Fall back to DB if Temporal query didn't work
			if status == "" && h.store != nil {
				run, err := h.store.GetRun(ctx, runID)
				if err != nil || run == nil {
					continue
				}
				status = run.Status
				steps = run.Steps
			}
			if status == "" {
				continue
			}

			// Send update if status or results changed
			if status != lastStatus || len(steps) != lastStepCount {
				msg := models.WSMessage{
					Type: "run_update",
					Payload: map[string]interface{}{
						"run_id": runID,
						"status": status,
						"steps":  steps,
					},
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}

				lastStatus = status
				lastStepCount = len(steps)

				if status.Terminal() {
					return
				}
			}
		}
	}
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a screenshot file
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	// Only files directly inside the screenshot directory are served
	filePath := filepath.Join(h.opts.ScreenshotDir, filepath.Base(filename))
	if filepath.Ext(filePath) != ".png" {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
