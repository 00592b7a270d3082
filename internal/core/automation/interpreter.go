package automation

import (
	"context"
	"errors"
	"time"

	"github.com/Nzyazin/payagent/internal/core/metrics"
)

// DefaultActionTimeout bounds every action that does not set its own deadline.
const DefaultActionTimeout = 30 * time.Second

// Result is what a successfully executed command produced. Text holds the
// element text for read commands and a short description otherwise.
type Result struct {
	Action Action
	Target string
	Text   string
}

// Interpreter executes one command against a page.
type Interpreter struct {
	timeout time.Duration
}

func NewInterpreter(timeout time.Duration) *Interpreter {
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	return &Interpreter{timeout: timeout}
}

func (in *Interpreter) Timeout() time.Duration { return in.timeout }

// Execute validates cmd before touching the page, then runs it under the
// interpreter timeout. Driver failures come back as *ActionError.
func (in *Interpreter) Execute(ctx context.Context, p Page, cmd Command) (Result, error) {
	if cmd == nil {
		return Result{}, &ActionError{Kind: KindInvalidCommand, Detail: "nil command"}
	}
	if err := cmd.validate(); err != nil {
		metrics.AutomationActions.WithLabelValues(string(cmd.Action()), "invalid").Inc()
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	text, err := cmd.run(runCtx, p)
	if err != nil {
		aerr := classify(cmd, err)
		metrics.AutomationActions.WithLabelValues(string(cmd.Action()), string(aerr.Kind)).Inc()
		return Result{}, aerr
	}

	metrics.AutomationActions.WithLabelValues(string(cmd.Action()), "ok").Inc()
	return Result{Action: cmd.Action(), Target: cmd.Target(), Text: text}, nil
}

func classify(cmd Command, err error) *ActionError {
	var aerr *ActionError
	if errors.As(err, &aerr) {
		return aerr
	}

	kind := KindTargetNotFound
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, ErrActionTimeout) {
		kind = KindActionTimeout
	}
	return &ActionError{Kind: kind, Action: cmd.Action(), Selector: cmd.Target(), Err: err}
}
