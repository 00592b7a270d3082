package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nzyazin/payagent/internal/core/automation"
	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/metrics"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
	"github.com/Nzyazin/payagent/pkg/config"
)

// BatchPolicy decides how a batch amortizes one authenticated session.
type BatchPolicy string

const (
	// BatchFastTrack drives only the first transaction through the bank UI and
	// PIN handshake, then marks the rest PAID without independent verification.
	BatchFastTrack BatchPolicy = "fast-track"
	// BatchPerTransaction drives every transaction through the full flow, each
	// with its own PIN, inside the shared session.
	BatchPerTransaction BatchPolicy = "per-transaction"
)

func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch BatchPolicy(s) {
	case "", BatchFastTrack:
		return BatchFastTrack, nil
	case BatchPerTransaction:
		return BatchPerTransaction, nil
	}
	return "", fmt.Errorf("unknown batch policy %q", s)
}

const statusWriteTimeout = 5 * time.Second

type PaymentOptions struct {
	Bank           config.BankConfig
	BatchPolicy    BatchPolicy
	FastTrackDelay time.Duration
	ArtifactDir    string
	Snapshot       automation.Snapshotter
}

// Outcome is how a run left one transaction. Err is set when the run failed or
// the transaction was not eligible.
type Outcome struct {
	TransactionID int64
	Status        models.Status
	Err           error
}

type BatchOutcome struct {
	BatchID    string
	Results    []Outcome
	Handshakes int
}

// PaymentUsecase executes approved transactions against the bank UI. Runs never
// return errors: the result is recorded in the transaction status and echoed
// in the outcome.
type PaymentUsecase interface {
	ExecutePayment(ctx context.Context, tx models.Transaction) Outcome
	ExecuteBatch(ctx context.Context, txs []models.Transaction) BatchOutcome
}

type paymentUsecase struct {
	repo     repository.TransactionRepository
	launcher automation.Launcher
	relay    PinRelay
	opts     PaymentOptions
	log      logger.Logger
}

func NewPaymentUsecase(repo repository.TransactionRepository, launcher automation.Launcher, relay PinRelay, opts PaymentOptions, log logger.Logger) PaymentUsecase {
	if opts.BatchPolicy == "" {
		opts.BatchPolicy = BatchFastTrack
	}
	return &paymentUsecase{
		repo:     repo,
		launcher: launcher,
		relay:    relay,
		opts:     opts,
		log:      log,
	}
}

func (uc *paymentUsecase) ExecutePayment(ctx context.Context, tx models.Transaction) Outcome {
	uc.log.Info("Starting payment",
		logger.Int64Field("transaction_id", tx.ID),
		logger.StringField("vendor", tx.Vendor),
		logger.StringField("amount", tx.Amount.String()))

	if !tx.Status.IsExecutable() {
		uc.log.Warn("Transaction is not executable",
			logger.Int64Field("transaction_id", tx.ID),
			logger.StringField("status", string(tx.Status)))
		metrics.PaymentRuns.WithLabelValues("single", "skipped").Inc()
		return Outcome{TransactionID: tx.ID, Status: tx.Status, Err: fmt.Errorf("%w: %s", ErrInvalidState, tx.Status)}
	}
	uc.ensureQueued(ctx, tx)

	err := automation.WithSession(ctx, uc.launcher, uc.sessionOptions(), uc.log, func(s *automation.Session) error {
		if err := uc.login(ctx, s); err != nil {
			return err
		}
		if err := uc.submitTransfer(ctx, s, tx); err != nil {
			return err
		}
		uc.announcePin(ctx, tx.ID)
		uc.setStatus(ctx, tx.ID, models.StatusWaitingForPin)
		return uc.confirmWithPin(ctx, s, tx)
	})

	if err != nil {
		uc.log.Error("Payment failed",
			logger.Int64Field("transaction_id", tx.ID),
			logger.ErrorField("error", err))
		uc.settle(ctx, tx.ID, models.StatusFailed, "browser")
		metrics.PaymentRuns.WithLabelValues("single", "failed").Inc()
		return Outcome{TransactionID: tx.ID, Status: models.StatusFailed, Err: err}
	}

	uc.settle(ctx, tx.ID, models.StatusPaid, "browser")
	metrics.PaymentRuns.WithLabelValues("single", "paid").Inc()
	uc.log.Info("Payment completed", logger.Int64Field("transaction_id", tx.ID))
	return Outcome{TransactionID: tx.ID, Status: models.StatusPaid}
}

func (uc *paymentUsecase) ExecuteBatch(ctx context.Context, txs []models.Transaction) BatchOutcome {
	out := BatchOutcome{}
	if len(txs) == 0 {
		return out
	}
	out.BatchID = txs[0].BatchID

	batch := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Status.IsExecutable() {
			uc.log.Warn("Skipping non-executable batch transaction",
				logger.Int64Field("transaction_id", tx.ID),
				logger.StringField("status", string(tx.Status)))
			out.Results = append(out.Results, Outcome{TransactionID: tx.ID, Status: tx.Status, Err: fmt.Errorf("%w: %s", ErrInvalidState, tx.Status)})
			continue
		}
		batch = append(batch, tx)
	}
	if len(batch) == 0 {
		metrics.PaymentRuns.WithLabelValues("batch", "skipped").Inc()
		return out
	}

	uc.log.Info("Starting batch payment",
		logger.StringField("batch_id", out.BatchID),
		logger.IntField("count", len(batch)),
		logger.StringField("policy", string(uc.opts.BatchPolicy)))

	run := &batchRun{uc: uc, txs: batch, status: make(map[int64]models.Status, len(batch)), errs: make(map[int64]error)}
	for _, tx := range batch {
		run.status[tx.ID] = tx.Status
		if uc.ensureQueued(ctx, tx) {
			run.status[tx.ID] = models.StatusQueuedForPayment
		}
	}

	err := automation.WithSession(ctx, uc.launcher, uc.sessionOptions(), uc.log, func(s *automation.Session) error {
		if err := uc.login(ctx, s); err != nil {
			return &authError{err: err}
		}
		return run.execute(ctx, s)
	})

	var authErr *authError
	if errors.As(err, &authErr) || (err != nil && run.noneStarted()) {
		// Nothing reached the bank: every transaction fails and may be re-queued.
		uc.log.Error("Batch authentication failed",
			logger.StringField("batch_id", out.BatchID),
			logger.ErrorField("error", err))
		for _, tx := range batch {
			run.settle(ctx, tx.ID, models.StatusFailed, "browser")
			run.errs[tx.ID] = err
		}
	} else if err != nil {
		uc.log.Error("Batch payment aborted",
			logger.StringField("batch_id", out.BatchID),
			logger.ErrorField("error", err))
	}

	outcome := "paid"
	for _, tx := range batch {
		st := run.status[tx.ID]
		if st != models.StatusPaid {
			outcome = "failed"
		}
		out.Results = append(out.Results, Outcome{TransactionID: tx.ID, Status: st, Err: run.errs[tx.ID]})
	}
	out.Handshakes = run.handshakes
	metrics.PaymentRuns.WithLabelValues("batch", outcome).Inc()
	return out
}

type authError struct{ err error }

func (e *authError) Error() string { return e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

// batchRun tracks per-transaction state for one batch execution.
type batchRun struct {
	uc         *paymentUsecase
	txs        []models.Transaction
	status     map[int64]models.Status
	errs       map[int64]error
	handshakes int
	started    bool
}

func (r *batchRun) noneStarted() bool { return !r.started }

func (r *batchRun) execute(ctx context.Context, s *automation.Session) error {
	r.started = true
	if r.uc.opts.BatchPolicy == BatchPerTransaction {
		return r.perTransaction(ctx, s)
	}
	return r.fastTrack(ctx, s)
}

// fastTrack marks the whole batch as waiting, drives the first transaction
// through the bank and settles the rest on its success.
func (r *batchRun) fastTrack(ctx context.Context, s *automation.Session) error {
	uc := r.uc
	rep := r.txs[0]

	uc.announcePin(ctx, rep.ID)
	for _, tx := range r.txs {
		r.setStatus(ctx, tx.ID, models.StatusWaitingForPin)
	}

	if err := r.drive(ctx, s, rep, false); err != nil {
		return err
	}

	followers := r.txs[1:]
	if len(followers) == 0 {
		return nil
	}
	uc.log.Warn("Fast-tracking batch transactions without browser verification",
		logger.StringField("batch_id", rep.BatchID),
		logger.Int64Field("representative_id", rep.ID),
		logger.IntField("count", len(followers)))

	for _, tx := range followers {
		_ = sleepCtx(ctx, uc.opts.FastTrackDelay)
		r.settle(ctx, tx.ID, models.StatusPaid, "fast_track")
	}
	return nil
}

// perTransaction drives every transaction with its own PIN. A failure aborts
// the run and releases the transactions not reached yet to FAILED so they can
// be approved again.
func (r *batchRun) perTransaction(ctx context.Context, s *automation.Session) error {
	for i, tx := range r.txs {
		if i > 0 {
			if err := r.uc.openTransferForm(ctx, s); err != nil {
				r.fail(ctx, tx.ID, err)
				r.release(ctx, r.txs[i+1:], err)
				return err
			}
		}
		if err := r.drive(ctx, s, tx, true); err != nil {
			r.release(ctx, r.txs[i+1:], err)
			return err
		}
	}
	return nil
}

func (r *batchRun) release(ctx context.Context, txs []models.Transaction, cause error) {
	for _, tx := range txs {
		r.settle(ctx, tx.ID, models.StatusFailed, "browser")
		r.errs[tx.ID] = fmt.Errorf("%w: %w", ErrBatchAborted, cause)
	}
	if len(txs) > 0 {
		r.uc.log.Warn("Released unreached batch transactions",
			logger.StringField("batch_id", txs[0].BatchID),
			logger.IntField("count", len(txs)))
	}
}

// drive runs one transaction through the transfer form and PIN handshake,
// recording PAID or FAILED for it. With markWaiting the transaction is moved
// to WAITING_FOR_PIN once the form is submitted.
func (r *batchRun) drive(ctx context.Context, s *automation.Session, tx models.Transaction, markWaiting bool) error {
	uc := r.uc
	err := uc.submitTransfer(ctx, s, tx)
	if err == nil {
		if markWaiting {
			uc.announcePin(ctx, tx.ID)
			r.setStatus(ctx, tx.ID, models.StatusWaitingForPin)
		}
		r.handshakes++
		err = uc.confirmWithPin(ctx, s, tx)
	}
	if err != nil {
		r.fail(ctx, tx.ID, err)
		return err
	}

	r.settle(ctx, tx.ID, models.StatusPaid, "browser")
	uc.log.Info("Batch transaction completed via browser", logger.Int64Field("transaction_id", tx.ID))
	return nil
}

func (r *batchRun) fail(ctx context.Context, id int64, err error) {
	r.uc.log.Error("Batch transaction failed",
		logger.Int64Field("transaction_id", id),
		logger.ErrorField("error", err))
	r.settle(ctx, id, models.StatusFailed, "browser")
	r.errs[id] = err
}

// setStatus and settle only record a status the store accepted, so the
// outcome never reports more than was written.
func (r *batchRun) setStatus(ctx context.Context, id int64, status models.Status) {
	if r.uc.setStatus(ctx, id, status) {
		r.status[id] = status
	}
}

func (r *batchRun) settle(ctx context.Context, id int64, status models.Status, path string) {
	if r.uc.settle(ctx, id, status, path) {
		r.status[id] = status
	}
}

func (uc *paymentUsecase) sessionOptions() automation.SessionOptions {
	return automation.SessionOptions{
		ActionTimeout: uc.opts.Bank.ActionTimeout,
		Snapshot:      uc.opts.Snapshot,
	}
}

// ensureQueued moves a transaction approved but not yet queued onto the queue
// and reports whether it did.
func (uc *paymentUsecase) ensureQueued(ctx context.Context, tx models.Transaction) bool {
	if tx.Status != models.StatusNeedsApproval {
		return false
	}
	return uc.setStatus(ctx, tx.ID, models.StatusQueuedForPayment)
}

// announcePin clears any PIN left from an earlier run so only one published
// after this point is consumed.
func (uc *paymentUsecase) announcePin(ctx context.Context, id int64) {
	if err := uc.relay.Reset(ctx, id); err != nil {
		uc.log.Warn("Failed to reset PIN handshake",
			logger.Int64Field("transaction_id", id),
			logger.ErrorField("error", err))
	}
}

func (uc *paymentUsecase) settle(ctx context.Context, id int64, status models.Status, path string) bool {
	if !uc.setStatus(ctx, id, status) {
		return false
	}
	metrics.TransactionsSettled.WithLabelValues(string(status), path).Inc()
	return true
}

// setStatus writes a status even if ctx has been cancelled, so a run that is
// torn down still leaves a status behind. Failures are logged and swallowed.
func (uc *paymentUsecase) setStatus(ctx context.Context, id int64, status models.Status) bool {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := uc.repo.TransitionStatus(writeCtx, id, status); err != nil {
		uc.log.Error("Failed to update transaction status",
			logger.Int64Field("transaction_id", id),
			logger.StringField("status", string(status)),
			logger.ErrorField("error", err))
		return false
	}
	return true
}
