package workflows_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/activities"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/workflows"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
	"dev/bravebird/guest-registration-walkthrough/pkg/walkthrough"
)

type WalkthroughWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env  *testsuite.TestWorkflowEnvironment
	acts *activities.Activities
}

func TestWalkthroughWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WalkthroughWorkflowSuite))
}

func (s *WalkthroughWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.SetWorkerOptions(worker.Options{EnableSessionWorker: true})
	s.acts = activities.NewActivities(walkthrough.DefaultOptions(), browser.DefaultOptions(), wait.Default())
	s.env.RegisterWorkflow(workflows.WalkthroughWorkflow)
	s.env.RegisterActivity(s.acts)
}

func (s *WalkthroughWorkflowSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *WalkthroughWorkflowSuite) expectOpen() {
	s.env.OnActivity(s.acts.OpenSessionActivity, mock.Anything, mock.MatchedBy(func(in workflows.SessionInput) bool {
		return in.RunID == "run-1" && in.Headless && in.WorkerSession != ""
	})).Return(workflows.Session{SessionID: "sess-1", RunID: "run-1"}, nil).Once()
}

func (s *WalkthroughWorkflowSuite) expectClose(err error) {
	s.env.OnActivity(s.acts.CloseSessionActivity, mock.Anything, "sess-1").Return(err).Once()
}

func (s *WalkthroughWorkflowSuite) captureRecord(dst *models.RunResult) {
	s.env.OnActivity(s.acts.RecordRunActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, res models.RunResult) error {
			*dst = res
			return nil
		}).Once()
}

func checkpointOf(name string) models.Checkpoint {
	step, _ := walkthrough.Lookup(walkthrough.Plan(walkthrough.DefaultOptions()), name)
	return step.Checkpoint
}

func (s *WalkthroughWorkflowSuite) Test_AllStepsPass() {
	var order []string
	s.expectOpen()
	s.env.OnActivity(s.acts.RunStepActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.StepInput) (models.StepResult, error) {
			order = append(order, in.Step)
			res := models.StepResult{Sequence: in.Sequence, Name: in.Step, Checkpoint: checkpointOf(in.Step), Status: models.StatusSuccess}
			if in.Step == "capture-screenshot" {
				res.ArtifactPath = "screenshots/registration_20240309-140507.png"
			}
			return res, nil
		})
	s.expectClose(nil)
	var recorded models.RunResult
	s.captureRecord(&recorded)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result models.RunResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.StatusSuccess, result.Status)
	s.Equal(walkthrough.StepNames(), order)
	s.Len(result.Checkpoints, 4)
	s.Equal("screenshots/registration_20240309-140507.png", result.ScreenshotPath)
	s.Equal(models.StatusSuccess, recorded.Status)
	s.Equal("run-1", recorded.RunID)
}

func (s *WalkthroughWorkflowSuite) Test_StopsAtFirstFailure() {
	s.expectOpen()
	calls := 0
	s.env.OnActivity(s.acts.RunStepActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.StepInput) (models.StepResult, error) {
			calls++
			res := models.StepResult{Sequence: in.Sequence, Name: in.Step, Checkpoint: checkpointOf(in.Step)}
			if in.Step == "verify-landing" {
				res.Status = models.StatusFailed
				res.ErrorKind = models.ErrorAssertion
				res.ErrorMessage = "landing page mismatch"
				return res, temporal.NewNonRetryableApplicationError("landing page mismatch", string(models.ErrorAssertion), nil, res)
			}
			res.Status = models.StatusSuccess
			return res, nil
		})
	s.expectClose(nil)
	var recorded models.RunResult
	s.captureRecord(&recorded)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true})

	s.True(s.env.IsWorkflowCompleted())
	var result models.RunResult
	s.NoError(s.env.GetWorkflowResult(&result))

	s.Equal(2, calls)
	s.Equal(models.StatusFailed, result.Status)
	s.Contains(result.ErrorMessage, "landing page mismatch")
	s.Len(result.Steps, len(walkthrough.StepNames()))
	s.Equal(models.StatusFailed, result.Steps[1].Status)
	s.Equal(models.ErrorAssertion, result.Steps[1].ErrorKind)
	for _, step := range result.Steps[2:] {
		s.Equal(models.StatusSkipped, step.Status, step.Name)
	}
	s.Equal(models.CheckpointResult{Name: models.CheckpointLanding, Status: models.StatusFailed}, result.Checkpoints[0])
	s.Equal(models.StatusFailed, recorded.Status)
}

func (s *WalkthroughWorkflowSuite) Test_OpenFailureSkipsEverything() {
	s.env.OnActivity(s.acts.OpenSessionActivity, mock.Anything, mock.Anything).
		Return(workflows.Session{}, temporal.NewNonRetryableApplicationError("chrome not found", string(models.ErrorDriver), nil)).Once()
	var recorded models.RunResult
	s.captureRecord(&recorded)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true})

	var result models.RunResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.StatusFailed, result.Status)
	s.Contains(result.ErrorMessage, "chrome not found")
	for _, step := range result.Steps {
		s.Equal(models.StatusSkipped, step.Status)
	}
	s.Equal(models.StatusFailed, recorded.Status)
}

func (s *WalkthroughWorkflowSuite) Test_ReleaseFailureFailsRun() {
	s.expectOpen()
	s.env.OnActivity(s.acts.RunStepActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.StepInput) (models.StepResult, error) {
			return models.StepResult{Sequence: in.Sequence, Name: in.Step, Checkpoint: checkpointOf(in.Step), Status: models.StatusSuccess}, nil
		})
	s.expectClose(temporal.NewNonRetryableApplicationError("browser already gone", string(models.ErrorDriver), nil))
	var recorded models.RunResult
	s.captureRecord(&recorded)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true, Steps: []string{"open-target"}})

	var result models.RunResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.StatusFailed, result.Status)
	s.Contains(result.ErrorMessage, "failed to release browser session")
	s.Len(result.Steps, 1)
}

func (s *WalkthroughWorkflowSuite) Test_ProgressQuery() {
	s.expectOpen()
	s.env.OnActivity(s.acts.RunStepActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.StepInput) (models.StepResult, error) {
			return models.StepResult{Sequence: in.Sequence, Name: in.Step, Checkpoint: checkpointOf(in.Step), Status: models.StatusSuccess}, nil
		})
	s.expectClose(nil)
	s.env.OnActivity(s.acts.RecordRunActivity, mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true, Steps: []string{"open-target", "verify-landing"}})

	val, err := s.env.QueryWorkflow(workflows.ProgressQuery)
	s.NoError(err)
	var progress models.RunResult
	s.NoError(val.Get(&progress))
	s.Equal("run-1", progress.RunID)
	s.Len(progress.Steps, 2)
	s.Equal(models.StatusSuccess, progress.Status)
}

func (s *WalkthroughWorkflowSuite) Test_CancelReleasesSessionAndReportsCanceled() {
	s.expectOpen()
	s.env.OnActivity(s.acts.RunStepActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.StepInput) (models.StepResult, error) {
			if in.Step == "verify-landing" {
				s.env.CancelWorkflow()
			}
			return models.StepResult{Sequence: in.Sequence, Name: in.Step, Checkpoint: checkpointOf(in.Step), Status: models.StatusSuccess}, nil
		})
	s.expectClose(nil)
	var recorded models.RunResult
	s.captureRecord(&recorded)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true})

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.True(temporal.IsCanceledError(err), err)

	s.Equal(models.StatusCanceled, recorded.Status)
	s.Len(recorded.Steps, len(walkthrough.StepNames()))
	s.Equal(models.StatusSkipped, recorded.Steps[len(recorded.Steps)-1].Status)
}

func (s *WalkthroughWorkflowSuite) Test_StepsShareOneWorkerSession() {
	var sessions []string
	s.env.OnActivity(s.acts.OpenSessionActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.SessionInput) (workflows.Session, error) {
			sessions = append(sessions, in.WorkerSession)
			return workflows.Session{SessionID: "sess-1", RunID: in.RunID}, nil
		}).Once()
	s.env.OnActivity(s.acts.RunStepActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, in workflows.StepInput) (models.StepResult, error) {
			return models.StepResult{Sequence: in.Sequence, Name: in.Step, Checkpoint: checkpointOf(in.Step), Status: models.StatusSuccess}, nil
		})
	s.expectClose(nil)
	s.env.OnActivity(s.acts.RecordRunActivity, mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(workflows.WalkthroughWorkflow, models.RunInput{RunID: "run-1", Headless: true, Steps: []string{"open-target"}})

	s.NoError(s.env.GetWorkflowError())
	s.Require().Len(sessions, 1)
	s.NotEmpty(sessions[0])
}
