package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
)

// ApprovalUsecase is what the approving user can do with their transactions.
type ApprovalUsecase interface {
	Get(ctx context.Context, owner string, id int64) (*models.Transaction, error)
	ListPending(ctx context.Context, owner string) ([]models.Transaction, error)
	UpdateDetails(ctx context.Context, owner string, id int64, patch models.DetailsPatch) (*models.Transaction, error)
	Approve(ctx context.Context, owner string, id int64) (*models.Transaction, error)
	ApproveBatch(ctx context.Context, owner, batchID string) ([]models.Transaction, error)
	ProvidePin(ctx context.Context, owner string, id int64, pin string) error
}

type approvalUsecase struct {
	repo       repository.TransactionRepository
	dispatcher Dispatcher
	pins       PinPublisher
	log        logger.Logger
}

func NewApprovalUsecase(repo repository.TransactionRepository, dispatcher Dispatcher, pins PinPublisher, log logger.Logger) ApprovalUsecase {
	return &approvalUsecase{
		repo:       repo,
		dispatcher: dispatcher,
		pins:       pins,
		log:        log,
	}
}

func (uc *approvalUsecase) Get(ctx context.Context, owner string, id int64) (*models.Transaction, error) {
	tx, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if tx.OwnerUserID != owner {
		return nil, ErrForbidden
	}
	return tx, nil
}

func (uc *approvalUsecase) ListPending(ctx context.Context, owner string) ([]models.Transaction, error) {
	return uc.repo.ListPending(ctx, owner)
}

func (uc *approvalUsecase) UpdateDetails(ctx context.Context, owner string, id int64, patch models.DetailsPatch) (*models.Transaction, error) {
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if _, err := uc.Get(ctx, owner, id); err != nil {
		return nil, err
	}

	tx, err := uc.repo.UpdateDetails(ctx, id, patch)
	if err != nil {
		return nil, mapRepoError(err)
	}
	uc.log.Info("Transaction details updated",
		logger.Int64Field("transaction_id", id),
		logger.StringField("status", string(tx.Status)))
	return tx, nil
}

// Approve queues one transaction for payment. A FAILED transaction may be
// approved again, which starts a fresh run.
func (uc *approvalUsecase) Approve(ctx context.Context, owner string, id int64) (*models.Transaction, error) {
	tx, err := uc.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.StatusNeedsApproval && tx.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, tx.Status)
	}
	if !tx.HasAccount() {
		return nil, ErrMissingAccount
	}

	if err := uc.repo.TransitionStatus(ctx, id, models.StatusQueuedForPayment); err != nil {
		return nil, mapRepoError(err)
	}
	tx.Status = models.StatusQueuedForPayment

	if err := uc.dispatcher.DispatchPayment(ctx, *tx); err != nil {
		uc.log.Error("Failed to dispatch payment",
			logger.Int64Field("transaction_id", id),
			logger.ErrorField("error", err))
		uc.release(ctx, id)
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	uc.log.Info("Transaction approved", logger.Int64Field("transaction_id", id))
	return tx, nil
}

// ApproveBatch queues every transaction of the batch still awaiting approval,
// together with any that failed and may be retried. A batch of one runs in
// single mode.
func (uc *approvalUsecase) ApproveBatch(ctx context.Context, owner, batchID string) ([]models.Transaction, error) {
	var candidates []models.Transaction
	for _, status := range []models.Status{models.StatusNeedsApproval, models.StatusFailed} {
		txs, err := uc.repo.ListByBatch(ctx, owner, batchID, status)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, txs...)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	queued := make([]models.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if err := uc.repo.TransitionStatus(ctx, tx.ID, models.StatusQueuedForPayment); err != nil {
			uc.log.Warn("Skipping batch transaction",
				logger.Int64Field("transaction_id", tx.ID),
				logger.ErrorField("error", err))
			continue
		}
		tx.Status = models.StatusQueuedForPayment
		queued = append(queued, tx)
	}
	if len(queued) == 0 {
		return nil, fmt.Errorf("%w: no transactions to approve in batch %s", ErrTransactionNotFound, batchID)
	}

	var err error
	if len(queued) == 1 {
		err = uc.dispatcher.DispatchPayment(ctx, queued[0])
	} else {
		err = uc.dispatcher.DispatchBatch(ctx, batchID, queued)
	}
	if err != nil {
		uc.log.Error("Failed to dispatch batch",
			logger.StringField("batch_id", batchID),
			logger.ErrorField("error", err))
		for _, tx := range queued {
			uc.release(ctx, tx.ID)
		}
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	uc.log.Info("Batch approved",
		logger.StringField("batch_id", batchID),
		logger.IntField("count", len(queued)))
	return queued, nil
}

// ProvidePin hands the approver's PIN to the run waiting for it.
func (uc *approvalUsecase) ProvidePin(ctx context.Context, owner string, id int64, pin string) error {
	if pin == "" {
		return ErrPinRequired
	}
	tx, err := uc.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if tx.Status != models.StatusWaitingForPin {
		return fmt.Errorf("%w: %s", ErrInvalidState, tx.Status)
	}

	if err := uc.pins.Publish(ctx, id, pin); err != nil {
		return err
	}
	uc.log.Info("PIN provided", logger.Int64Field("transaction_id", id))
	return nil
}

// release fails a transaction whose job never reached the queue so it can be
// approved again.
func (uc *approvalUsecase) release(ctx context.Context, id int64) {
	if err := uc.repo.TransitionStatus(context.WithoutCancel(ctx), id, models.StatusFailed); err != nil {
		uc.log.Error("Failed to release undispatched transaction",
			logger.Int64Field("transaction_id", id),
			logger.ErrorField("error", err))
	}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repository.ErrTransitionRejected):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return err
}
