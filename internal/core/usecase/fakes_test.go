package usecase_test

import (
	"context"
	"sync"

	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/usecase"
)

type dispatcherStub struct {
	mu       sync.Mutex
	payments []models.Transaction
	batches  map[string][]models.Transaction
	ingests  []usecase.IngestRequest
	err      error
}

func newDispatcherStub() *dispatcherStub {
	return &dispatcherStub{batches: make(map[string][]models.Transaction)}
}

func (d *dispatcherStub) DispatchPayment(_ context.Context, tx models.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.payments = append(d.payments, tx)
	return nil
}

func (d *dispatcherStub) DispatchBatch(_ context.Context, batchID string, txs []models.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.batches[batchID] = txs
	return nil
}

func (d *dispatcherStub) DispatchIngest(_ context.Context, req usecase.IngestRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ingests = append(d.ingests, req)
	return nil
}

type extractorStub struct {
	candidates []models.Candidate
	err        error
}

func (e extractorStub) Extract(context.Context, string) ([]models.Candidate, error) {
	return e.candidates, e.err
}

type notifierStub struct {
	summaries []usecase.BatchSummary
	err       error
}

func (n *notifierStub) NotifyBatch(_ context.Context, s usecase.BatchSummary) error {
	n.summaries = append(n.summaries, s)
	return n.err
}
