// Package walkthrough drives the guest registration form through a fixed,
// ordered list of steps sharing one browser session.
package walkthrough

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"

	"dev/bravebird/guest-registration-walkthrough/pkg/logging"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
)

// Observer is notified as steps and runs complete
type Observer interface {
	StepDone(result models.StepResult)
	RunDone(result models.RunResult)
}

// Execute runs a single step against the session and reports its outcome.
// The returned error is a *StepError when the step failed.
func Execute(ctx context.Context, s *Session, seq int, step Step) (models.StepResult, error) {
	started := time.Now()
	result := models.StepResult{
		Sequence:   seq,
		Name:       step.Name,
		Checkpoint: step.Checkpoint,
		Status:     models.StatusRunning,
		StartedAt:  &started,
	}

	s.Log.Info("Executing step", "sequence", seq, "step", step.Name, "checkpoint", step.Checkpoint)

	err := step.Run(ctx, s)
	result.Duration = time.Since(started).Milliseconds()
	if step.Checkpoint == models.CheckpointArtifact {
		result.ArtifactPath = s.ArtifactPath
	}

	if err != nil {
		kind := KindOf(err)
		result.Status = models.StatusFailed
		result.ErrorKind = kind
		result.ErrorMessage = err.Error()
		s.Log.Error("Step failed", "step", step.Name, "kind", kind, "error", err)
		return result, &StepError{Step: step.Name, Kind: kind, Err: err}
	}

	result.Status = models.StatusSuccess
	return result, nil
}

// Runner executes a plan in order within one scoped session
type Runner struct {
	Open     Opener
	Steps    []Step
	Wait     wait.Policy
	Log      log.Logger
	Observer Observer
}

// Run executes every step until the first failure; remaining steps are reported as skipped.
// The session is released exactly once whatever happens.
func (r *Runner) Run(ctx context.Context) (models.RunResult, error) {
	logger := r.Log
	if logger == nil {
		logger = logging.Nop()
	}

	started := time.Now()
	result := models.RunResult{
		RunID:  uuid.New().String(),
		Status: models.StatusRunning,
		Steps:  make([]models.StepResult, 0, len(r.Steps)),
	}
	logger.Info("Starting walkthrough", "runID", result.RunID, "steps", len(r.Steps))

	err := WithSession(ctx, r.Open, r.Wait, logger, func(s *Session) error {
		for i, step := range r.Steps {
			stepResult, err := Execute(ctx, s, i+1, step)
			result.Steps = append(result.Steps, stepResult)
			r.notifyStep(stepResult)
			if err != nil {
				r.skipRemaining(&result, i+1)
				return err
			}
		}
		result.ScreenshotPath = s.ArtifactPath
		return nil
	})

	result.TotalDuration = time.Since(started).Milliseconds()
	if err != nil && len(result.Steps) == 0 {
		// The session never opened, so nothing ran.
		r.skipRemaining(&result, 0)
	}
	result.Summarize()
	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = err.Error()
	}

	if r.Observer != nil {
		r.Observer.RunDone(result)
	}
	logger.Info("Walkthrough completed", "runID", result.RunID, "status", result.Status, "duration", result.TotalDuration)
	return result, err
}

func (r *Runner) notifyStep(res models.StepResult) {
	if r.Observer != nil {
		r.Observer.StepDone(res)
	}
}

func (r *Runner) skipRemaining(result *models.RunResult, from int) {
	for j := from; j < len(r.Steps); j++ {
		result.Steps = append(result.Steps, models.StepResult{
			Sequence:   j + 1,
			Name:       r.Steps[j].Name,
			Checkpoint: r.Steps[j].Checkpoint,
			Status:     models.StatusSkipped,
		})
	}
}
