package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
	"github.com/Nzyazin/payagent/internal/core/usecase"
)

// Runner executes decoded jobs against the use cases.
type Runner struct {
	repo     repository.TransactionRepository
	ingest   usecase.IngestUsecase
	payments usecase.PaymentUsecase
	log      logger.Logger
}

var _ Handler = (*Runner)(nil)

func NewRunner(repo repository.TransactionRepository, ingest usecase.IngestUsecase, payments usecase.PaymentUsecase, log logger.Logger) *Runner {
	return &Runner{repo: repo, ingest: ingest, payments: payments, log: log}
}

// Handle only fails when the job's transactions cannot be loaded. Payment
// outcomes are recorded on the transactions themselves.
func (r *Runner) Handle(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindIngest:
		res := r.ingest.ProcessInvoice(ctx, *job.Ingest)
		r.log.Info("Ingest job finished",
			logger.StringField("batch_id", res.BatchID),
			logger.IntField("transactions", len(res.Transactions)))
		return nil

	case KindSingle:
		txs, err := r.load(ctx, job.TransactionIDs)
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			return nil
		}
		out := r.payments.ExecutePayment(ctx, txs[0])
		r.log.Info("Payment job finished",
			logger.Int64Field("transaction_id", out.TransactionID),
			logger.StringField("status", string(out.Status)))
		return nil

	case KindBatch:
		txs, err := r.load(ctx, job.TransactionIDs)
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			return nil
		}
		out := r.payments.ExecuteBatch(ctx, txs)
		r.log.Info("Batch job finished",
			logger.StringField("batch_id", out.BatchID),
			logger.IntField("transactions", len(out.Results)),
			logger.IntField("handshakes", out.Handshakes))
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrMalformedJob, job.Kind)
}

// load reads the current rows in job order. Rows that no longer exist are
// dropped; any other store error fails the job.
func (r *Runner) load(ctx context.Context, ids []int64) ([]models.Transaction, error) {
	txs := make([]models.Transaction, 0, len(ids))
	for _, id := range ids {
		tx, err := r.repo.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			r.log.Warn("Job references a missing transaction", logger.Int64Field("transaction_id", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load transaction %d: %w", id, err)
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}
