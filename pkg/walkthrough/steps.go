package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dev/bravebird/guest-registration-walkthrough/pkg/browser"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/wait"
)

// Step is one named, non-retryable unit of the walkthrough
type Step struct {
	Name       string
	Checkpoint models.Checkpoint
	Run        func(ctx context.Context, s *Session) error
}

// Readiness is the element condition a step waits for before acting
type Readiness int

const (
	Interactable Readiness = iota // found, visible and enabled
	Present                       // found in the DOM
	Visible                       // found and rendered
)

func (r Readiness) String() string {
	switch r {
	case Present:
		return "present"
	case Visible:
		return "visible"
	default:
		return "interactable"
	}
}

func (r Readiness) satisfied(st browser.ElementState) bool {
	switch r {
	case Present:
		return st.Found
	case Visible:
		return st.Found && st.Visible
	default:
		return st.Interactable()
	}
}

// InputMode selects how a field value reaches the page
type InputMode int

const (
	// Typed sends the value as keystrokes
	Typed InputMode = iota
	// Injected assigns the value property directly, bypassing client-side input handling
	Injected
	// ClearThenTyped empties the value property, then types
	ClearThenTyped
	// ScriptClick activates the element with a script click; the value is informational
	ScriptClick
	// Selected picks the option whose visible text equals the value
	Selected
)

// Field describes one form control and the value it receives
type Field struct {
	Step      string
	Locator   browser.Locator
	Value     string
	Mode      InputMode
	Readiness Readiness
}

// awaitElement polls until loc reaches the requested readiness.
// A locator that never resolves is ElementNotFound; one that resolves but never becomes ready is Timeout.
func awaitElement(ctx context.Context, s *Session, loc browser.Locator, ready Readiness) error {
	found := false
	err := s.Wait.Until(ctx, func(ctx context.Context) (bool, error) {
		st, err := s.Driver.State(ctx, loc)
		if err != nil {
			return false, err
		}
		found = found || st.Found
		return ready.satisfied(st), nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, wait.ErrTimeout) {
		if !found {
			return withKind(models.ErrorElementNotFound, fmt.Errorf("%s never appeared: %w", loc, err))
		}
		return withKind(models.ErrorTimeout, fmt.Errorf("%s never became %s: %w", loc, ready, err))
	}
	return err
}

// awaitReadyState polls document.readyState until it is complete
func awaitReadyState(ctx context.Context, s *Session) error {
	err := s.Wait.Until(ctx, func(ctx context.Context) (bool, error) {
		state, err := s.Driver.ReadyState(ctx)
		if err != nil {
			return false, err
		}
		return state == "complete", nil
	})
	if err != nil {
		if errors.Is(err, wait.ErrTimeout) {
			return withKind(models.ErrorTimeout, fmt.Errorf("page never reached ready state: %w", err))
		}
		return err
	}
	return nil
}

// OpenPage navigates to url and waits for the page-ready signal
func OpenPage(name string, checkpoint models.Checkpoint, url string) Step {
	return Step{
		Name:       name,
		Checkpoint: checkpoint,
		Run: func(ctx context.Context, s *Session) error {
			if err := s.Driver.Navigate(ctx, url); err != nil {
				return fmt.Errorf("failed to navigate to %s: %w", url, err)
			}
			return awaitReadyState(ctx, s)
		},
	}
}

// VerifyLanding checks the exact page title and a URL substring
func VerifyLanding(target Target) Step {
	return Step{
		Name:       "verify-landing",
		Checkpoint: models.CheckpointLanding,
		Run: func(ctx context.Context, s *Session) error {
			info, err := s.Driver.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to read page info: %w", err)
			}

			var problems []string
			if info.Title != target.Title {
				problems = append(problems, fmt.Sprintf("title = %q, want %q", info.Title, target.Title))
			}
			if !strings.Contains(info.URL, target.URLFragment) {
				problems = append(problems, fmt.Sprintf("url %q does not contain %q", info.URL, target.URLFragment))
			}
			if len(problems) > 0 {
				return assertionf("landing page mismatch: %s", strings.Join(problems, "; "))
			}
			return nil
		},
	}
}

// Populate locates the field, waits for it, scrolls it into view and sets its value per its mode
func Populate(f Field) Step {
	return Step{
		Name:       f.Step,
		Checkpoint: models.CheckpointForm,
		Run: func(ctx context.Context, s *Session) error {
			if err := awaitElement(ctx, s, f.Locator, f.Readiness); err != nil {
				return err
			}
			if err := s.Driver.ScrollIntoView(ctx, f.Locator); err != nil {
				return fmt.Errorf("failed to scroll to %s: %w", f.Locator, err)
			}

			var err error
			switch f.Mode {
			case Injected:
				err = s.Driver.SetValue(ctx, f.Locator, f.Value)
			case ClearThenTyped:
				if err = s.Driver.SetValue(ctx, f.Locator, ""); err == nil {
					err = s.Driver.Type(ctx, f.Locator, f.Value)
				}
			case ScriptClick:
				err = s.Driver.Click(ctx, f.Locator)
			case Selected:
				err = s.Driver.SelectOption(ctx, f.Locator, f.Value)
			default:
				err = s.Driver.Type(ctx, f.Locator, f.Value)
			}
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", f.Locator, err)
			}

			s.Log.Debug("Field populated", "step", f.Step, "locator", f.Locator.String())
			return nil
		},
	}
}

// EnsureChecked activates a checkbox unless it is already checked
func EnsureChecked(name string, loc browser.Locator) Step {
	return Step{
		Name:       name,
		Checkpoint: models.CheckpointForm,
		Run: func(ctx context.Context, s *Session) error {
			if err := awaitElement(ctx, s, loc, Interactable); err != nil {
				return err
			}
			if err := s.Driver.ScrollIntoView(ctx, loc); err != nil {
				return fmt.Errorf("failed to scroll to %s: %w", loc, err)
			}

			st, err := s.Driver.State(ctx, loc)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", loc, err)
			}
			if st.Checked {
				return nil
			}
			if err := s.Driver.Click(ctx, loc); err != nil {
				return fmt.Errorf("failed to check %s: %w", loc, err)
			}
			return nil
		},
	}
}

// Submit activates the submit control
func Submit(loc browser.Locator) Step {
	return Step{
		Name:       "submit",
		Checkpoint: models.CheckpointForm,
		Run: func(ctx context.Context, s *Session) error {
			if err := awaitElement(ctx, s, loc, Interactable); err != nil {
				return err
			}
			if err := s.Driver.ScrollIntoView(ctx, loc); err != nil {
				return fmt.Errorf("failed to scroll to %s: %w", loc, err)
			}
			if err := s.Driver.Click(ctx, loc); err != nil {
				return fmt.Errorf("failed to submit: %w", err)
			}
			return nil
		},
	}
}

// VerifyOutcome waits for the message element and checks that it contains phrase
func VerifyOutcome(loc browser.Locator, phrase string) Step {
	return Step{
		Name:       "verify-outcome",
		Checkpoint: models.CheckpointOutcome,
		Run: func(ctx context.Context, s *Session) error {
			if err := awaitElement(ctx, s, loc, Visible); err != nil {
				return err
			}
			text, err := s.Driver.Text(ctx, loc)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", loc, err)
			}
			if !strings.Contains(text, phrase) {
				return assertionf("registration was not successful: message %q does not contain %q", text, phrase)
			}
			return nil
		},
	}
}

// CaptureScreenshot saves a full-page screenshot through store
func CaptureScreenshot(store ScreenshotStore) Step {
	return Step{
		Name:       "capture-screenshot",
		Checkpoint: models.CheckpointArtifact,
		Run: func(ctx context.Context, s *Session) error {
			data, err := s.Driver.Screenshot(ctx)
			if err != nil {
				return fmt.Errorf("failed to take screenshot: %w", err)
			}
			path, err := store.Save(data)
			if err != nil {
				return err
			}
			s.ArtifactPath = path
			s.Log.Info("Screenshot saved", "path", path)
			return nil
		},
	}
}
