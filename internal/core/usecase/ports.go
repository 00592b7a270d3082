package usecase

import (
	"context"

	"github.com/Nzyazin/payagent/internal/core/models"
)

// PinRelay is the waiting side of the PIN handshake.
type PinRelay interface {
	Reset(ctx context.Context, transactionID int64) error
	Await(ctx context.Context, transactionID int64, onTick func(context.Context)) (string, error)
}

// PinPublisher is the approver side of the PIN handshake.
type PinPublisher interface {
	Publish(ctx context.Context, transactionID int64, secret string) error
}

// Dispatcher hands units of work to the worker pool.
type Dispatcher interface {
	DispatchPayment(ctx context.Context, tx models.Transaction) error
	DispatchBatch(ctx context.Context, batchID string, txs []models.Transaction) error
	DispatchIngest(ctx context.Context, req IngestRequest) error
}

// Extractor turns an invoice file into candidate transactions.
type Extractor interface {
	Extract(ctx context.Context, filePath string) ([]models.Candidate, error)
}

// Notifier delivers a batch summary to the approver.
type Notifier interface {
	NotifyBatch(ctx context.Context, summary BatchSummary) error
}
