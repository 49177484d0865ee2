package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/walkthrough"
)

const (
	// TaskQueue is the queue the walkthrough worker polls
	TaskQueue = "guest-registration"
	// WorkflowName is the registered name of WalkthroughWorkflow
	WorkflowName = "WalkthroughWorkflow"
	// ProgressQuery returns the RunResult accumulated so far
	ProgressQuery = "getProgress"

	OpenSessionActivity  = "OpenSessionActivity"
	RunStepActivity      = "RunStepActivity"
	CloseSessionActivity = "CloseSessionActivity"
	RecordRunActivity    = "RecordRunActivity"

	defaultStepTimeout = 2 * time.Minute
	sessionHeartbeat   = 20 * time.Second
)

// WalkthroughWorkflow runs the registration walkthrough one step per activity against a single
// browser session held by one worker. It stops at the first failing step and always closes the session.
func WalkthroughWorkflow(ctx workflow.Context, input models.RunInput) (models.RunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting walkthrough workflow", "runID", input.RunID)

	names := input.Steps
	if len(names) == 0 {
		names = walkthrough.StepNames()
	}

	result := models.RunResult{
		RunID:  input.RunID,
		Status: models.StatusRunning,
		Steps:  make([]models.StepResult, 0, len(names)),
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.RunResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	timeout := defaultStepTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
	}
	// Steps are never retried; a failed step fails the run.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	failure := runInSession(ctx, input, names, timeout, &result)

	result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()
	result.Summarize()
	if failure != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = failure.Error()
		if ctx.Err() != nil {
			result.Status = models.StatusCanceled
		}
	}

	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	if err := workflow.ExecuteActivity(dctx, RecordRunActivity, result).Get(dctx, nil); err != nil {
		logger.Warn("Failed to record run", "runID", result.RunID, "error", err)
	}

	logger.Info("Workflow completed", "status", result.Status, "duration", result.TotalDuration)
	if result.Status == models.StatusCanceled {
		return result, temporal.NewCanceledError(result)
	}
	return result, nil
}

// runInSession pins the browser session and every step to one worker through a Temporal session.
// The session outlives workflow cancellation so the browser is still released; steps are canceled with the workflow.
func runInSession(ctx workflow.Context, input models.RunInput, names []string, timeout time.Duration, result *models.RunResult) (failure error) {
	logger := workflow.GetLogger(ctx)

	dctx, cancelDetached := workflow.NewDisconnectedContext(ctx)
	defer cancelDetached()

	sessionCtx, err := workflow.CreateSession(dctx, &workflow.SessionOptions{
		CreationTimeout:  timeout,
		ExecutionTimeout: time.Duration(len(names)+2) * timeout,
		HeartbeatTimeout: sessionHeartbeat,
	})
	if err != nil {
		skipFrom(result, names, 0)
		return fmt.Errorf("failed to create worker session: %w", err)
	}
	defer workflow.CompleteSession(sessionCtx)
	info := workflow.GetSessionInfo(sessionCtx)

	stepCtx, cancelSteps := workflow.WithCancel(sessionCtx)
	defer cancelSteps()
	workflow.Go(ctx, func(gctx workflow.Context) {
		gctx.Done().Receive(gctx, nil)
		cancelSteps()
	})

	var session Session
	err = workflow.ExecuteActivity(stepCtx, OpenSessionActivity, SessionInput{
		RunID:         input.RunID,
		Headless:      input.Headless,
		WorkerSession: info.SessionID,
	}).Get(stepCtx, &session)
	if err != nil {
		skipFrom(result, names, 0)
		return fmt.Errorf("failed to open browser session: %w", err)
	}

	failure = runSteps(stepCtx, session, names, result)

	if err := workflow.ExecuteActivity(sessionCtx, CloseSessionActivity, session.SessionID).Get(sessionCtx, nil); err != nil {
		logger.Warn("Failed to close browser session", "sessionID", session.SessionID, "error", err)
		failure = errors.Join(failure, fmt.Errorf("failed to release browser session: %w", err))
	}
	return failure
}

// runSteps executes names in order until one fails, marking the rest skipped
func runSteps(ctx workflow.Context, session Session, names []string, result *models.RunResult) error {
	logger := workflow.GetLogger(ctx)

	for i, name := range names {
		logger.Info("Executing step", "sequence", i+1, "step", name)

		var stepResult models.StepResult
		err := workflow.ExecuteActivity(ctx, RunStepActivity, StepInput{
			SessionID: session.SessionID,
			RunID:     session.RunID,
			Sequence:  i + 1,
			Step:      name,
		}).Get(ctx, &stepResult)

		if err != nil {
			result.Steps = append(result.Steps, failedStep(i+1, name, err))
			skipFrom(result, names, i+1)
			return err
		}

		result.Steps = append(result.Steps, stepResult)
		if stepResult.ArtifactPath != "" {
			result.ScreenshotPath = stepResult.ArtifactPath
		}
	}
	return nil
}

// failedStep recovers the step result carried by an activity failure
func failedStep(seq int, name string, err error) models.StepResult {
	res := models.StepResult{
		Sequence:   seq,
		Name:       name,
		Checkpoint: checkpointOf(name),
		Status:     models.StatusFailed,
		ErrorKind:  models.ErrorDriver,
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		var detailed models.StepResult
		if appErr.HasDetails() && appErr.Details(&detailed) == nil && detailed.Name != "" {
			res = detailed
		}
		if appErr.Type() != "" {
			res.ErrorKind = models.ErrorKind(appErr.Type())
		}
		res.ErrorMessage = appErr.Message()
	} else {
		if temporal.IsTimeoutError(err) {
			res.ErrorKind = models.ErrorTimeout
		}
		res.ErrorMessage = err.Error()
	}

	res.Sequence = seq
	res.Status = models.StatusFailed
	return res
}

func skipFrom(result *models.RunResult, names []string, from int) {
	for j := from; j < len(names); j++ {
		result.Steps = append(result.Steps, models.StepResult{
			Sequence:   j + 1,
			Name:       names[j],
			Checkpoint: checkpointOf(names[j]),
			Status:     models.StatusSkipped,
		})
	}
}

func checkpointOf(name string) models.Checkpoint {
	if step, ok := walkthrough.Lookup(walkthrough.Plan(walkthrough.DefaultOptions()), name); ok {
		return step.Checkpoint
	}
	return ""
}

// SessionInput is the input for opening a browser session
type SessionInput struct {
	RunID    string `json:"run_id"`
	Headless bool   `json:"headless"`
	// WorkerSession is the Temporal session pinning the run to one worker
	WorkerSession string `json:"worker_session"`
}

// Session identifies a browser session held by the worker
type Session struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
}

// StepInput is the input for executing one walkthrough step
type StepInput struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	Sequence  int    `json:"sequence"`
	Step      string `json:"step"`
}
