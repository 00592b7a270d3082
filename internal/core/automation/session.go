package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/metrics"
)

// ActionRecord is one entry of a session's action log.
type ActionRecord struct {
	Seq      int64
	Action   Action
	Target   string
	Err      string
	At       time.Time
	Duration time.Duration
}

// Session owns one page for the lifetime of a single orchestrator run. Actions
// run strictly one at a time and every successful action refreshes the
// snapshot, if one is configured.
type Session struct {
	page        Page
	interpreter *Interpreter
	snapshot    Snapshotter
	log         logger.Logger

	mu      sync.Mutex
	seq     int64
	records []ActionRecord
	closed  bool
}

type SessionOptions struct {
	ActionTimeout time.Duration
	Snapshot      Snapshotter
}

func Open(ctx context.Context, launcher Launcher, opts SessionOptions, log logger.Logger) (*Session, error) {
	page, err := launcher.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return NewSession(page, opts, log), nil
}

func NewSession(page Page, opts SessionOptions, log logger.Logger) *Session {
	return &Session{
		page:        page,
		interpreter: NewInterpreter(opts.ActionTimeout),
		snapshot:    opts.Snapshot,
		log:         log,
	}
}

// WithSession opens a session, hands it to fn and closes it on every exit path.
func WithSession(ctx context.Context, launcher Launcher, opts SessionOptions, log logger.Logger, fn func(*Session) error) error {
	s, err := Open(ctx, launcher, opts, log)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}

// Execute runs cmd and, on success, refreshes the snapshot. A snapshot
// failure is logged and never affects the returned result.
func (s *Session) Execute(ctx context.Context, cmd Command) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrSessionClosed
	}

	start := time.Now()
	res, err := s.interpreter.Execute(ctx, s.page, cmd)
	s.record(cmd, start, err)
	if err != nil {
		s.log.Warn("Automation action failed",
			logger.StringField("action", string(actionOf(cmd))),
			logger.StringField("target", targetOf(cmd)),
			logger.ErrorField("error", err))
		return Result{}, err
	}

	s.log.Debug("Automation action done",
		logger.StringField("action", string(res.Action)),
		logger.StringField("target", res.Target),
		logger.DurationField("took", time.Since(start)))

	s.captureLocked(ctx)
	return res, nil
}

// Refresh re-captures the snapshot without running an action.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.captureLocked(ctx)
}

// Log returns a copy of the executed actions in order.
func (s *Session) Log() []ActionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ActionRecord(nil), s.records...)
}

// Close releases the page. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.page.Close(); err != nil {
		s.log.Warn("Failed to close automation page", logger.ErrorField("error", err))
		return err
	}
	return nil
}

func (s *Session) captureLocked(ctx context.Context) {
	if s.snapshot == nil {
		return
	}

	snapCtx, cancel := context.WithTimeout(ctx, s.interpreter.Timeout())
	defer cancel()

	if err := s.snapshot.Capture(snapCtx, s.page); err != nil {
		metrics.SnapshotFailures.Inc()
		s.log.Warn("Failed to save live feed snapshot", logger.ErrorField("error", err))
	}
}

func (s *Session) record(cmd Command, start time.Time, err error) {
	s.seq++
	rec := ActionRecord{
		Seq:      s.seq,
		Action:   actionOf(cmd),
		Target:   targetOf(cmd),
		At:       start,
		Duration: time.Since(start),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	s.records = append(s.records, rec)
}

func actionOf(cmd Command) Action {
	if cmd == nil {
		return ""
	}
	return cmd.Action()
}

func targetOf(cmd Command) string {
	if cmd == nil {
		return ""
	}
	return cmd.Target()
}
