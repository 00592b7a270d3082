// Package queue carries ingest and payment jobs between the API and the
// workers over RabbitMQ.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/usecase"
)

type Kind string

const (
	KindIngest Kind = "ingest"
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
)

var ErrMalformedJob = errors.New("malformed job")

// Job is the message body. Transactions travel as ids; the worker reads their
// current state before running.
type Job struct {
	Kind           Kind                   `json:"kind"`
	BatchID        string                 `json:"batch_id,omitempty"`
	TransactionIDs []int64                `json:"transaction_ids,omitempty"`
	Ingest         *usecase.IngestRequest `json:"ingest,omitempty"`
}

func PaymentJob(tx models.Transaction) Job {
	return Job{Kind: KindSingle, BatchID: tx.BatchID, TransactionIDs: []int64{tx.ID}}
}

func BatchJob(batchID string, txs []models.Transaction) Job {
	ids := make([]int64, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	return Job{Kind: KindBatch, BatchID: batchID, TransactionIDs: ids}
}

func IngestJob(req usecase.IngestRequest) Job {
	return Job{Kind: KindIngest, BatchID: req.BatchID, Ingest: &req}
}

func (j Job) Validate() error {
	switch j.Kind {
	case KindIngest:
		if j.Ingest == nil || j.Ingest.FilePath == "" {
			return fmt.Errorf("%w: ingest job without file", ErrMalformedJob)
		}
	case KindSingle:
		if len(j.TransactionIDs) != 1 {
			return fmt.Errorf("%w: single job needs exactly one transaction", ErrMalformedJob)
		}
	case KindBatch:
		if len(j.TransactionIDs) == 0 {
			return fmt.Errorf("%w: empty batch", ErrMalformedJob)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedJob, j.Kind)
	}
	return nil
}

func Encode(j Job) ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

func Decode(body []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}
