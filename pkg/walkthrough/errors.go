package walkthrough

import (
	"context"
	"errors"
	"fmt"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
)

// StepError reports which step failed and why
type StepError struct {
	Step string
	Kind models.ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// kindError tags an error with its kind without naming the step
type kindError struct {
	kind models.ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

func withKind(kind models.ErrorKind, err error) error {
	return &kindError{kind: kind, err: err}
}

func assertionf(format string, args ...interface{}) error {
	return withKind(models.ErrorAssertion, fmt.Errorf(format, args...))
}

// KindOf classifies err into the walkthrough error taxonomy
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorNone
	}

	var se *StepError
	if errors.As(err, &se) && se.Kind != models.ErrorNone {
		return se.Kind
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}

	switch {
	case errors.Is(err, wait.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		// A step deadline shorter than the wait policy surfaces as the caller's deadline.
		return models.ErrorTimeout
	case errors.Is(err, browser.ErrNoElement):
		return models.ErrorElementNotFound
	default:
		return models.ErrorDriver
	}
}
