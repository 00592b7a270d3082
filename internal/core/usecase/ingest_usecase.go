package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/repository"
)

var ErrFileRequired = errors.New("invoice file path is required")

// IngestRequest asks a worker to turn one uploaded invoice into a batch.
type IngestRequest struct {
	BatchID  string `json:"batch_id"`
	FilePath string `json:"file_path"`
	Owner    string `json:"user_id"`
}

// BatchSummary is what the approver is told once a batch has been created.
type BatchSummary struct {
	BatchID      string
	Owner        string
	Transactions []models.Transaction
}

type IngestResult struct {
	BatchID      string
	Transactions []models.Transaction
}

type IngestUsecase interface {
	Submit(ctx context.Context, owner, filePath string) (string, error)
	ProcessInvoice(ctx context.Context, req IngestRequest) IngestResult
}

type ingestUsecase struct {
	repo       repository.TransactionRepository
	extractor  Extractor
	notifier   Notifier
	dispatcher Dispatcher
	log        logger.Logger
}

// NewIngestUsecase builds the ingestion flow. notifier may be nil.
func NewIngestUsecase(repo repository.TransactionRepository, extractor Extractor, notifier Notifier, dispatcher Dispatcher, log logger.Logger) IngestUsecase {
	return &ingestUsecase{
		repo:       repo,
		extractor:  extractor,
		notifier:   notifier,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Submit assigns a batch id to an uploaded invoice and queues its extraction.
func (uc *ingestUsecase) Submit(ctx context.Context, owner, filePath string) (string, error) {
	if filePath == "" {
		return "", ErrFileRequired
	}
	req := IngestRequest{
		BatchID:  uuid.NewString(),
		FilePath: filePath,
		Owner:    owner,
	}
	if err := uc.dispatcher.DispatchIngest(ctx, req); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	uc.log.Info("Invoice queued for extraction",
		logger.StringField("batch_id", req.BatchID),
		logger.StringField("file", filePath))
	return req.BatchID, nil
}

// ProcessInvoice extracts candidates from the invoice, stores one transaction
// per candidate and notifies the owner. Extraction, persistence and
// notification failures shrink the result but never abort it.
func (uc *ingestUsecase) ProcessInvoice(ctx context.Context, req IngestRequest) IngestResult {
	result := IngestResult{BatchID: req.BatchID, Transactions: []models.Transaction{}}

	candidates, err := uc.extractor.Extract(ctx, req.FilePath)
	if err != nil {
		uc.log.Error("Extraction failed",
			logger.StringField("batch_id", req.BatchID),
			logger.ErrorField("error", err))
		candidates = nil
	}

	for _, c := range candidates {
		tx := models.NewTransaction(req.BatchID, req.Owner, c)
		if _, err := uc.repo.Insert(ctx, tx); err != nil {
			uc.log.Error("Failed to save transaction",
				logger.StringField("batch_id", req.BatchID),
				logger.StringField("vendor", c.Vendor),
				logger.ErrorField("error", err))
			continue
		}
		result.Transactions = append(result.Transactions, *tx)
	}

	uc.log.Info("Invoice processed",
		logger.StringField("batch_id", req.BatchID),
		logger.IntField("transactions", len(result.Transactions)))

	if uc.notifier != nil {
		summary := BatchSummary{BatchID: req.BatchID, Owner: req.Owner, Transactions: result.Transactions}
		if err := uc.notifier.NotifyBatch(ctx, summary); err != nil {
			uc.log.Warn("Failed to send batch summary",
				logger.StringField("batch_id", req.BatchID),
				logger.ErrorField("error", err))
		}
	}
	return result
}
