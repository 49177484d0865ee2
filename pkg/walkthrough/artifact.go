package walkthrough

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dev/bravebird/guest-registration-walkthrough/pkg/models"
)

// TimestampLayout renders capture times at second granularity
const TimestampLayout = "20060102-150405"

// ScreenshotStore writes screenshot artifacts as <Dir>/<Prefix>_<timestamp>.png
type ScreenshotStore struct {
	Dir    string
	Prefix string
	Now    func() time.Time
}

// DefaultScreenshotStore writes registration_<timestamp>.png under ./screenshots
func DefaultScreenshotStore() ScreenshotStore {
	return ScreenshotStore{Dir: "screenshots", Prefix: "registration"}
}

// Path returns the artifact path for a capture taken at t
func (s ScreenshotStore) Path(t time.Time) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "registration"
	}
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.png", prefix, t.Format(TimestampLayout)))
}

// Save persists data and returns the written path
func (s ScreenshotStore) Save(data []byte) (string, error) {
	if len(data) == 0 {
		return "", withKind(models.ErrorIO, fmt.Errorf("screenshot is empty"))
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	path := s.Path(now())

	// Ensure screenshot directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", withKind(models.ErrorIO, fmt.Errorf("failed to create screenshot dir: %w", err))
	}
	// Artifacts are write-once; an existing file is never replaced.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", withKind(models.ErrorIO, fmt.Errorf("failed to create screenshot: %w", err))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", withKind(models.ErrorIO, fmt.Errorf("failed to save screenshot: %w", err))
	}
	if err := f.Close(); err != nil {
		return "", withKind(models.ErrorIO, fmt.Errorf("failed to save screenshot: %w", err))
	}
	return path, nil
}
