// Package automationtest provides an in-memory page for exercising code
// that drives automation sessions.
package automationtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Nzyazin/payagent/internal/core/automation"
)

// Call is one interaction the fake page received.
type Call struct {
	Op       string
	Selector string
	Text     string
}

// Page records every interaction and fails the ones it was told to.
type Page struct {
	mu sync.Mutex

	calls       []Call
	failures    map[string]error
	failOnce    map[string]error
	texts       map[string]string
	screenshots int
	closed      bool

	// ScreenshotErr, when set, fails every screenshot.
	ScreenshotErr error
}

func NewPage() *Page {
	return &Page{
		failures: make(map[string]error),
		failOnce: make(map[string]error),
		texts:    make(map[string]string),
	}
}

// Fail makes every interaction with selector (or URL) return err.
func (p *Page) Fail(selector string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[selector] = err
	return p
}

// FailOnce makes the next interaction with selector return err.
func (p *Page) FailOnce(selector string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnce[selector] = err
	return p
}

// Hang makes interactions with selector block until their context ends.
func (p *Page) Hang(selector string) *Page {
	return p.Fail(selector, errHang)
}

func (p *Page) SetText(selector, text string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[selector] = text
	return p
}

var errHang = errors.New("hang")

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.do(ctx, Call{Op: "navigate", Selector: url})
}

func (p *Page) Fill(ctx context.Context, selector, text string) error {
	return p.do(ctx, Call{Op: "fill", Selector: selector, Text: text})
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.do(ctx, Call{Op: "click", Selector: selector})
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := p.do(ctx, Call{Op: "read", Selector: selector}); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[selector], nil
}

func (p *Page) WaitFor(ctx context.Context, selector string, state automation.WaitState) error {
	return p.do(ctx, Call{Op: "wait", Selector: selector, Text: string(state)})
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("page closed")
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.screenshots++
	return []byte(fmt.Sprintf("png-%d", p.screenshots)), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsTo returns the interactions of kind op, in order.
func (p *Page) CallsTo(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screenshots
}

func (p *Page) do(ctx context.Context, c Call) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("page closed")
	}
	p.calls = append(p.calls, c)
	err, once := p.failOnce[c.Selector]
	if once {
		delete(p.failOnce, c.Selector)
	} else {
		err = p.failures[c.Selector]
	}
	p.mu.Unlock()

	if errors.Is(err, errHang) {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

// Launcher hands out pages in order; once exhausted it keeps returning the last one.
type Launcher struct {
	mu    sync.Mutex
	pages []*Page
	next  int
	Err   error
}

func NewLauncher(pages ...*Page) *Launcher {
	return &Launcher{pages: pages}
}

func (l *Launcher) NewPage(context.Context) (automation.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if len(l.pages) == 0 {
		l.pages = append(l.pages, NewPage())
	}
	idx := l.next
	if idx >= len(l.pages) {
		idx = len(l.pages) - 1
	}
	l.next++
	return l.pages[idx], nil
}

// Opened is the number of pages handed out.
func (l *Launcher) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}
