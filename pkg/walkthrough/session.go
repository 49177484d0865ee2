package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.temporal.io/sdk/log"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/logging"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
)

// Opener acquires a browser driver
type Opener func(ctx context.Context) (browser.Driver, error)

// BrowserOpener opens a real browser with opts
func BrowserOpener(opts browser.Options) Opener {
	return func(ctx context.Context) (browser.Driver, error) {
		return browser.Open(ctx, opts)
	}
}

// Session is the state shared by every step of one run
type Session struct {
	Driver browser.Driver
	Wait   wait.Policy
	Log    log.Logger

	// ArtifactPath is set once the screenshot has been written
	ArtifactPath string

	releaseOnce sync.Once
	releaseErr  error
}

// NewSession wraps an open driver; a nil logger discards output
func NewSession(driver browser.Driver, policy wait.Policy, logger log.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Session{Driver: driver, Wait: policy, Log: logger}
}

// Release closes the driver. Only the first call reaches the driver.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.Driver.Close()
		if s.releaseErr != nil {
			s.Log.Warn("Failed to release browser session", "error", s.releaseErr)
			return
		}
		s.Log.Info("Browser session released")
	})
	return s.releaseErr
}

// WithSession opens a session, runs fn, and releases the session on every exit path
func WithSession(ctx context.Context, open Opener, policy wait.Policy, logger log.Logger, fn func(*Session) error) (err error) {
	driver, err := open(ctx)
	if err != nil {
		return &StepError{Step: "open-session", Kind: KindOf(err), Err: fmt.Errorf("failed to open browser session: %w", err)}
	}

	sess := NewSession(driver, policy, logger)
	defer func() {
		if p := recover(); p != nil {
			_ = sess.Release()
			panic(p)
		}
		if rerr := sess.Release(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release browser session: %w", rerr))
		}
	}()

	return fn(sess)
}
