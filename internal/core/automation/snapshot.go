package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshotter captures the current view of a page somewhere a human can watch it.
type Snapshotter interface {
	Capture(ctx context.Context, p Page) error
}

// LiveFeed overwrites a single image file with the latest page view. The file
// is replaced by rename so readers never observe a partial image.
type LiveFeed struct {
	path string
}

func NewLiveFeed(path string) *LiveFeed {
	return &LiveFeed{path: path}
}

func (f *LiveFeed) Path() string { return f.path }

func (f *LiveFeed) Capture(ctx context.Context, p Page) error {
	img, err := p.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("capture live feed: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create live feed dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".live-*.png")
	if err != nil {
		return fmt.Errorf("create live feed temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod live feed: %w", err)
	}

	if _, err := tmp.Write(img); err != nil {
		tmp.Close()
		return fmt.Errorf("write live feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close live feed: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
