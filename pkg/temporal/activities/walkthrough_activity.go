package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/temporal/workflows"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
	"dev/bravebird/guest-registration-walkthrough/pkg/walkthrough"
)

// SessionPool holds the browser sessions opened on this worker
type SessionPool struct {
	sessions map[string]*pooledSession
	mu       sync.RWMutex
}

type pooledSession struct {
	session   *walkthrough.Session
	runID     string
	createdAt time.Time
}

// NewSessionPool creates an empty pool
func NewSessionPool() *SessionPool {
	return &SessionPool{sessions: make(map[string]*pooledSession)}
}

func (p *SessionPool) put(id, runID string, s *walkthrough.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id] = &pooledSession{session: s, runID: runID, createdAt: time.Now()}
}

func (p *SessionPool) get(id string) (*walkthrough.Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ps, ok := p.sessions[id]
	if !ok {
		return nil, false
	}
	return ps.session, true
}

func (p *SessionPool) take(id string) (*pooledSession, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.sessions[id]
	if !ok {
		return nil, false
	}
	delete(p.sessions, id)
	return ps, true
}

// Len returns the number of open sessions
func (p *SessionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// CloseAll releases every session, used on worker shutdown
func (p *SessionPool) CloseAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*pooledSession)
	p.mu.Unlock()

	for _, ps := range sessions {
		_ = ps.session.Release()
	}
}

// ResultStore persists finished runs
type ResultStore interface {
	SaveResult(ctx context.Context, result models.RunResult) error
}

// Activities holds activity implementations
type Activities struct {
	Options walkthrough.Options
	Browser browser.Options
	Wait    wait.Policy

	// Open launches the browser; defaults to browser.Open
	Open func(ctx context.Context, opts browser.Options) (browser.Driver, error)
	// Store and Observer are optional
	Store    ResultStore
	Observer walkthrough.Observer

	Pool *SessionPool
	plan []walkthrough.Step
}

// NewActivities creates new activities
func NewActivities(opts walkthrough.Options, browserOpts browser.Options, policy wait.Policy) *Activities {
	return &Activities{
		Options: opts,
		Browser: browserOpts,
		Wait:    policy,
		Open:    browser.Open,
		Pool:    NewSessionPool(),
		plan:    walkthrough.Plan(opts),
	}
}

func (a *Activities) steps() []walkthrough.Step {
	if a.plan == nil {
		return walkthrough.Plan(a.Options)
	}
	return a.plan
}

// OpenSessionActivity launches a browser and keeps it in the pool for the following steps
func (a *Activities) OpenSessionActivity(ctx context.Context, input workflows.SessionInput) (workflows.Session, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Opening browser session", "runID", input.RunID, "headless", input.Headless, "workerSession", input.WorkerSession)

	open := a.Open
	if open == nil {
		open = browser.Open
	}
	opts := a.Browser
	opts.Headless = input.Headless

	driver, err := open(ctx, opts)
	if err != nil {
		return workflows.Session{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("failed to open browser session: %v", err), string(walkthrough.KindOf(err)), err)
	}

	sessionID := uuid.New().String()
	a.Pool.put(sessionID, input.RunID, walkthrough.NewSession(driver, a.Wait, logger))

	logger.Info("Browser session created", "sessionID", sessionID)
	return workflows.Session{SessionID: sessionID, RunID: input.RunID}, nil
}

// RunStepActivity executes one named step against a pooled session.
// A failed step is returned as a non-retryable application error typed by its error kind,
// carrying the step result as details.
func (a *Activities) RunStepActivity(ctx context.Context, input workflows.StepInput) (models.StepResult, error) {
	logger := activity.GetLogger(ctx)

	sess, ok := a.Pool.get(input.SessionID)
	if !ok {
		return models.StepResult{}, temporal.NewNonRetryableApplicationError(
			"browser session not found: "+input.SessionID, string(models.ErrorDriver), nil)
	}
	step, ok := walkthrough.Lookup(a.steps(), input.Step)
	if !ok {
		return models.StepResult{}, temporal.NewNonRetryableApplicationError(
			"unknown step: "+input.Step, string(models.ErrorDriver), nil)
	}

	sess.Log = logger
	result, err := walkthrough.Execute(ctx, sess, input.Sequence, step)
	if a.Observer != nil {
		a.Observer.StepDone(result)
	}
	if err != nil {
		return result, temporal.NewNonRetryableApplicationError(err.Error(), string(result.ErrorKind), err, result)
	}
	return result, nil
}

// CloseSessionActivity releases a pooled session; closing an unknown session is a no-op
func (a *Activities) CloseSessionActivity(ctx context.Context, sessionID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Closing browser session", "sessionID", sessionID)

	ps, ok := a.Pool.take(sessionID)
	if !ok {
		return nil // Already closed
	}
	ps.session.Log = log.With(logger, "sessionID", sessionID, "runID", ps.runID, "age", time.Since(ps.createdAt))
	if err := ps.session.Release(); err != nil {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("failed to release browser session: %v", err), string(models.ErrorDriver), err)
	}
	return nil
}

// RecordRunActivity reports the final result to the observer and the store
func (a *Activities) RecordRunActivity(ctx context.Context, result models.RunResult) error {
	logger := activity.GetLogger(ctx)

	if a.Observer != nil {
		a.Observer.RunDone(result)
	}
	if a.Store == nil {
		logger.Debug("No result store configured", "runID", result.RunID)
		return nil
	}
	if err := a.Store.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("failed to record run %s: %w", result.RunID, err)
	}
	logger.Info("Run recorded", "runID", result.RunID, "status", result.Status)
	return nil
}
