package repository

import (
	"context"
	"errors"

	"github.com/Nzyazin/payagent/internal/core/models"
)

var (
	ErrNotFound = errors.New("transaction not found")
	// ErrTransitionRejected means the row exists but its current status may not
	// move to the requested one.
	ErrTransitionRejected = errors.New("status transition rejected")
)

type TransactionRepository interface {
	Insert(ctx context.Context, tx *models.Transaction) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	ListPending(ctx context.Context, ownerUserID string) ([]models.Transaction, error)
	ListByBatch(ctx context.Context, ownerUserID, batchID string, status models.Status) ([]models.Transaction, error)
	// TransitionStatus writes status only when the stored status may move to it.
	TransitionStatus(ctx context.Context, id int64, status models.Status) error
	// UpdateDetails applies the patch while the row is still editable and
	// returns the updated row.
	UpdateDetails(ctx context.Context, id int64, patch models.DetailsPatch) (*models.Transaction, error)
}
