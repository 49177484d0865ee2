package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/browser/browsertest"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/workflows"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
	"dev/bravebird/guest-registration-walkthrough/pkg/walkthrough"
)

type fakeStore struct {
	saved []models.RunResult
	err   error
}

func (s *fakeStore) SaveResult(ctx context.Context, result models.RunResult) error {
	s.saved = append(s.saved, result)
	return s.err
}

type countingObserver struct {
	steps, runs int
}

func (o *countingObserver) StepDone(models.StepResult) { o.steps++ }
func (o *countingObserver) RunDone(models.RunResult)   { o.runs++ }

func newTestActivities(t *testing.T, d *browsertest.Driver) (*Activities, *testsuite.TestActivityEnvironment) {
	t.Helper()
	opts := walkthrough.DefaultOptions()
	opts.Screenshots = walkthrough.ScreenshotStore{Dir: t.TempDir()}

	acts := NewActivities(opts, browser.DefaultOptions(), wait.Policy{Timeout: 100 * time.Millisecond, Interval: 5 * time.Millisecond})
	acts.Open = func(ctx context.Context, o browser.Options) (browser.Driver, error) {
		return d, nil
	}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)
	return acts, env
}

func openSession(t *testing.T, acts *Activities, env *testsuite.TestActivityEnvironment) workflows.Session {
	t.Helper()
	val, err := env.ExecuteActivity(acts.OpenSessionActivity, workflows.SessionInput{RunID: "run-1", Headless: true})
	require.NoError(t, err)

	var session workflows.Session
	require.NoError(t, val.Get(&session))
	return session
}

func TestOpenRunAndCloseSession(t *testing.T) {
	d := browsertest.New()
	d.Title = walkthrough.DefaultTitle
	acts, env := newTestActivities(t, d)
	obs := &countingObserver{}
	acts.Observer = obs

	session := openSession(t, acts, env)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, "run-1", session.RunID)
	assert.Equal(t, 1, acts.Pool.Len())

	for i, name := range []string{"open-target", "verify-landing"} {
		val, err := env.ExecuteActivity(acts.RunStepActivity, workflows.StepInput{
			SessionID: session.SessionID,
			RunID:     session.RunID,
			Sequence:  i + 1,
			Step:      name,
		})
		require.NoError(t, err, name)

		var res models.StepResult
		require.NoError(t, val.Get(&res))
		assert.Equal(t, models.StatusSuccess, res.Status)
		assert.Equal(t, name, res.Name)
		assert.Equal(t, models.CheckpointLanding, res.Checkpoint)
	}
	assert.Equal(t, 2, obs.steps)

	_, err := env.ExecuteActivity(acts.CloseSessionActivity, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Closed)
	assert.Zero(t, acts.Pool.Len())

	// A second close is a no-op
	_, err = env.ExecuteActivity(acts.CloseSessionActivity, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Closed)
}

func TestRunStepFailureIsTypedByKind(t *testing.T) {
	d := browsertest.New()
	d.Title = "Something else"
	acts, env := newTestActivities(t, d)
	session := openSession(t, acts, env)

	_, err := env.ExecuteActivity(acts.RunStepActivity, workflows.StepInput{
		SessionID: session.SessionID,
		Sequence:  2,
		Step:      "verify-landing",
	})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, string(models.ErrorAssertion), appErr.Type())
	assert.True(t, appErr.NonRetryable())

	var res models.StepResult
	require.NoError(t, appErr.Details(&res))
	assert.Equal(t, "verify-landing", res.Name)
	assert.Equal(t, models.StatusFailed, res.Status)
}

func TestRunStepUnknownSessionOrStep(t *testing.T) {
	d := browsertest.New()
	acts, env := newTestActivities(t, d)

	_, err := env.ExecuteActivity(acts.RunStepActivity, workflows.StepInput{SessionID: "missing", Step: "open-target"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")

	session := openSession(t, acts, env)
	_, err = env.ExecuteActivity(acts.RunStepActivity, workflows.StepInput{SessionID: session.SessionID, Step: "teardown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestOpenSessionFailure(t *testing.T) {
	acts, env := newTestActivities(t, browsertest.New())
	acts.Open = func(ctx context.Context, o browser.Options) (browser.Driver, error) {
		return nil, errors.New("chrome not found")
	}

	_, err := env.ExecuteActivity(acts.OpenSessionActivity, workflows.SessionInput{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Zero(t, acts.Pool.Len())
}

func TestOpenSessionHonoursHeadless(t *testing.T) {
	acts, env := newTestActivities(t, browsertest.New())
	var got browser.Options
	acts.Open = func(ctx context.Context, o browser.Options) (browser.Driver, error) {
		got = o
		return browsertest.New(), nil
	}

	_, err := env.ExecuteActivity(acts.OpenSessionActivity, workflows.SessionInput{RunID: "run-1", Headless: false})
	require.NoError(t, err)
	assert.False(t, got.Headless)
	assert.Equal(t, browser.KindRod, got.Kind)
}

func TestRecordRunActivity(t *testing.T) {
	acts, env := newTestActivities(t, browsertest.New())
	store := &fakeStore{}
	obs := &countingObserver{}
	acts.Store = store
	acts.Observer = obs

	result := models.RunResult{RunID: "run-1", Status: models.StatusSuccess}
	_, err := env.ExecuteActivity(acts.RecordRunActivity, result)
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "run-1", store.saved[0].RunID)
	assert.Equal(t, 1, obs.runs)

	store.err = errors.New("connection refused")
	_, err = env.ExecuteActivity(acts.RecordRunActivity, result)
	require.Error(t, err)
}

func TestRecordRunWithoutStore(t *testing.T) {
	acts, env := newTestActivities(t, browsertest.New())

	_, err := env.ExecuteActivity(acts.RecordRunActivity, models.RunResult{RunID: "run-1"})
	require.NoError(t, err)
}

func TestSessionPoolCloseAll(t *testing.T) {
	pool := NewSessionPool()
	a, b := browsertest.New(), browsertest.New()
	pool.put("a", "run-a", walkthrough.NewSession(a, wait.Default(), nil))
	pool.put("b", "run-b", walkthrough.NewSession(b, wait.Default(), nil))

	pool.CloseAll()

	assert.Zero(t, pool.Len())
	assert.Equal(t, 1, a.Closed)
	assert.Equal(t, 1, b.Closed)
}
