package automation

import "context"

// Page is a live, DOM-addressable browser tab. Implementations honor the
// deadline and cancellation of the context passed to each call.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	WaitFor(ctx context.Context, selector string, state WaitState) error
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher opens a fresh page for one session.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}
