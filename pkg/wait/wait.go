// Package wait implements the bounded polling used by every locate and wait
// operation of the walkthrough.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/utils"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 250 * time.Millisecond
)

// ErrTimeout is returned when a condition does not hold before the deadline
var ErrTimeout = errors.New("condition not met before deadline")

// Condition reports whether the awaited state has been reached.
// A returned error does not stop polling; the last one is attached to the timeout.
type Condition func(ctx context.Context) (bool, error)

// Policy bounds a polling loop
type Policy struct {
	Timeout  time.Duration `json:"timeout"`
	Interval time.Duration `json:"interval"`
	// MaxInterval enables exponential backoff from Interval up to MaxInterval.
	MaxInterval time.Duration `json:"max_interval,omitempty"`
}

// Default returns the ten second policy used by the walkthrough
func Default() Policy {
	return Policy{
		Timeout:  DefaultTimeout,
		Interval: DefaultInterval,
	}
}

func (p Policy) normalized() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	return p
}

func (p Policy) sleeper() utils.Sleeper {
	if p.MaxInterval == p.Interval {
		return utils.BackoffSleeper(p.Interval, p.Interval, func(d time.Duration) time.Duration { return d })
	}
	return utils.BackoffSleeper(p.Interval, p.MaxInterval, nil)
}

// Until polls cond until it holds or the policy deadline expires.
// The condition is always evaluated at least once.
func (p Policy) Until(ctx context.Context, cond Condition) error {
	p = p.normalized()

	waitCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var last error
	err := utils.Retry(waitCtx, p.sleeper(), func() (bool, error) {
		ok, err := cond(waitCtx)
		if err != nil {
			last = err
			return false, nil
		}
		return ok, nil
	})
	if err == nil {
		return nil
	}

	// The caller gave up; that is not a timeout of this wait.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if last != nil {
			return fmt.Errorf("%w after %s: %v", ErrTimeout, p.Timeout, last)
		}
		return fmt.Errorf("%w after %s", ErrTimeout, p.Timeout)
	}
	return err
}

// Until polls cond with the default policy
func Until(ctx context.Context, cond Condition) error {
	return Default().Until(ctx, cond)
}
