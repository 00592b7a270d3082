package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const transactionColumns = `id, batch_id, vendor, amount, account_number, ifsc_code, remarks, status, user_id, created_at, updated_at`

type postgresTransactionRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresTransactionRepo(db *sqlx.DB, log logger.Logger) repository.TransactionRepository {
	return &postgresTransactionRepo{
		db:  db,
		log: log,
	}
}

func (r *postgresTransactionRepo) Insert(ctx context.Context, tx *models.Transaction) (int64, error) {
	const query = `INSERT INTO transactions
        (batch_id, vendor, amount, account_number, ifsc_code, remarks, status, user_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at`

	row := r.db.QueryRowxContext(ctx, query,
		tx.BatchID,
		tx.Vendor,
		tx.Amount,
		tx.AccountNumber,
		tx.IFSCCode,
		tx.Remarks,
		tx.Status,
		tx.OwnerUserID,
	)
	if err := row.Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	return tx.ID, nil
}

func (r *postgresTransactionRepo) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	err := r.db.GetContext(ctx, &tx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("error getting transaction: %w", err)
	}

	return &tx, nil
}

func (r *postgresTransactionRepo) ListPending(ctx context.Context, ownerUserID string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE user_id = $1 AND status = ANY($2)
        ORDER BY created_at DESC, id DESC`

	txs := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &txs, query, ownerUserID, statusArray(models.PendingStatuses)); err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	return txs, nil
}

func (r *postgresTransactionRepo) ListByBatch(ctx context.Context, ownerUserID, batchID string, status models.Status) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
        WHERE user_id = $1 AND batch_id = $2 AND status = $3
        ORDER BY id ASC`

	txs := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &txs, query, ownerUserID, batchID, status); err != nil {
		return nil, fmt.Errorf("list batch transactions: %w", err)
	}
	return txs, nil
}

func (r *postgresTransactionRepo) TransitionStatus(ctx context.Context, id int64, status models.Status) error {
	const query = `UPDATE transactions
        SET status = $1, updated_at = NOW()
        WHERE id = $2 AND status = ANY($3)`

	res, err := r.db.ExecContext(ctx, query, status, id, statusArray(models.SourcesOf(status)))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", repository.ErrTransitionRejected, current.Status, status)
}

func (r *postgresTransactionRepo) UpdateDetails(ctx context.Context, id int64, patch models.DetailsPatch) (updated *models.Transaction, err error) {
	var isCommitted bool
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.log.Error("Error beginning transaction",
			logger.ErrorField("error", err))
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if err != nil && !isCommitted {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error("Transaction rollback failed",
					logger.ErrorField("error", rbErr))
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	var current models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: id %d", repository.ErrNotFound, id)
			return nil, err
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}

	if !isEditable(current.Status) {
		err = fmt.Errorf("%w: details are read-only in %s", repository.ErrTransitionRejected, current.Status)
		return nil, err
	}

	patch.Apply(&current)
	if current.Status == models.StatusNeedsReview && current.HasAccount() {
		current.Status = models.StatusNeedsApproval
	}

	const update = `UPDATE transactions
        SET vendor = $1, amount = $2, account_number = $3, ifsc_code = $4, remarks = $5, status = $6, updated_at = NOW()
        WHERE id = $7
        RETURNING updated_at`
	if err = tx.QueryRowxContext(ctx, update,
		current.Vendor,
		current.Amount,
		current.AccountNumber,
		current.IFSCCode,
		current.Remarks,
		current.Status,
		id,
	).Scan(&current.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update details: %w", err)
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("Error committing transaction",
			logger.ErrorField("error", err))
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	isCommitted = true
	return &current, nil
}

func isEditable(s models.Status) bool {
	for _, e := range models.EditableStatuses {
		if s == e {
			return true
		}
	}
	return false
}

func statusArray(statuses []models.Status) pq.StringArray {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.StringArray(out)
}
