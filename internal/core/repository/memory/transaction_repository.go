package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
)

// TransactionRepo is a process-local store with the same conditional
// transition semantics as the postgres implementation.
type TransactionRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]models.Transaction
	// history records every status written per id, in order.
	history map[int64][]models.Status
}

func NewTransactionRepo() *TransactionRepo {
	return &TransactionRepo{
		items:   make(map[int64]models.Transaction),
		history: make(map[int64][]models.Status),
	}
}

var _ repository.TransactionRepository = (*TransactionRepo)(nil)

func (r *TransactionRepo) Insert(_ context.Context, tx *models.Transaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().UTC()
	tx.ID = r.nextID
	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.items[tx.ID] = *tx
	r.history[tx.ID] = []models.Status{tx.Status}
	return tx.ID, nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id int64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", repository.ErrNotFound, id)
	}
	return &tx, nil
}

func (r *TransactionRepo) ListPending(_ context.Context, ownerUserID string) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Transaction{}
	for _, tx := range r.items {
		if tx.OwnerUserID != ownerUserID {
			continue
		}
		for _, s := range models.PendingStatuses {
			if tx.Status == s {
				out = append(out, tx)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *TransactionRepo) ListByBatch(_ context.Context, ownerUserID, batchID string, status models.Status) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Transaction{}
	for _, tx := range r.items {
		if tx.OwnerUserID == ownerUserID && tx.BatchID == batchID && tx.Status == status {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *TransactionRepo) TransitionStatus(_ context.Context, id int64, status models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: id %d", repository.ErrNotFound, id)
	}
	if !models.CanTransition(tx.Status, status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrTransitionRejected, tx.Status, status)
	}
	tx.Status = status
	tx.UpdatedAt = time.Now().UTC()
	r.items[id] = tx
	r.history[id] = append(r.history[id], status)
	return nil
}

func (r *TransactionRepo) UpdateDetails(_ context.Context, id int64, patch models.DetailsPatch) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", repository.ErrNotFound, id)
	}
	if tx.Status != models.StatusNeedsReview && tx.Status != models.StatusNeedsApproval {
		return nil, fmt.Errorf("%w: details are read-only in %s", repository.ErrTransitionRejected, tx.Status)
	}

	patch.Apply(&tx)
	if tx.Status == models.StatusNeedsReview && tx.HasAccount() {
		tx.Status = models.StatusNeedsApproval
		r.history[id] = append(r.history[id], tx.Status)
	}
	tx.UpdatedAt = time.Now().UTC()
	r.items[id] = tx
	return &tx, nil
}

// History returns the sequence of statuses written for id.
func (r *TransactionRepo) History(id int64) []models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.Status(nil), r.history[id]...)
}
