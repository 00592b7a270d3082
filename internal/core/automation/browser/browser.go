// Package browser drives a Chrome tab through the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Nzyazin/payagent/internal/core/automation"
	"github.com/Nzyazin/payagent/internal/core/logger"
	cdpage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

type Config struct {
	// RemoteURL points at a running browser's DevTools websocket. When empty a
	// local Chrome is started.
	RemoteURL string
	ExecPath  string
	Headless  bool
	Width     int
	Height    int
}

type Launcher struct {
	cfg Config
	log logger.Logger
}

func NewLauncher(cfg Config, log logger.Logger) *Launcher {
	if cfg.Width == 0 || cfg.Height == 0 {
		cfg.Width, cfg.Height = 1280, 800
	}
	return &Launcher{cfg: cfg, log: log}
}

var _ automation.Launcher = (*Launcher)(nil)

func (l *Launcher) NewPage(ctx context.Context) (automation.Page, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if l.cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), l.cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", l.cfg.Headless),
			chromedp.NoSandbox,
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.WindowSize(l.cfg.Width, l.cfg.Height),
		)
		if l.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			l.log.Warn("chromedp error", logger.StringField("detail", fmt.Sprintf(format, args...)))
		}),
	)

	p := &page{tab: tabCtx, cancel: func() { cancelTab(); cancelAlloc() }}
	if err := p.run(ctx); err != nil {
		p.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return p, nil
}

type page struct {
	tab    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, bounded by the deadline and cancellation
// of the caller's ctx. Derived contexts never close the tab itself.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (p *page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *page) Fill(ctx context.Context, selector, text string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (p *page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *page) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := p.run(ctx, chromedp.Text(selector, &out, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return "", err
	}
	return out, nil
}

func (p *page) WaitFor(ctx context.Context, selector string, state automation.WaitState) error {
	switch state {
	case automation.StateVisible:
		return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	case automation.StateAttached:
		return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
	case automation.StateHidden:
		// Absent elements count as hidden.
		var hidden bool
		return p.run(ctx, chromedp.Poll(hiddenExpr(selector), &hidden))
	}
	return fmt.Errorf("unsupported wait state %q", state)
}

func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdpage.CaptureScreenshot().WithFormat(cdpage.CaptureScreenshotFormatPng).Do(ctx)
		return err
	})
	if err := p.run(ctx, capture); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *page) Close() error {
	p.cancel()
	return nil
}

func hiddenExpr(selector string) string {
	return `(function() {
	const el = document.querySelector(` + strconv.Quote(selector) + `);
	if (!el) return true;
	const style = window.getComputedStyle(el);
	return style.display === 'none' || style.visibility === 'hidden' || el.getClientRects().length === 0;
})()`
}
