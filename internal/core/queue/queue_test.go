package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/queue"
	"github.com/Nzyazin/payagent/internal/core/repository/memory"
	"github.com/Nzyazin/payagent/internal/core/usecase"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type channelStub struct {
	key  string
	msgs []amqp.Publishing
	err  error
}

func (c *channelStub) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.key = key
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestPublisherSendsPersistentJobs(t *testing.T) {
	ch := &channelStub{}
	p := queue.NewPublisher(ch, "payagent.jobs", zap.NewNop())

	txs := []models.Transaction{{ID: 4, BatchID: "b1"}, {ID: 5, BatchID: "b1"}}
	require.NoError(t, p.DispatchBatch(context.Background(), "b1", txs))

	assert.Equal(t, "payagent.jobs", ch.key)
	require.Len(t, ch.msgs, 1)
	msg := ch.msgs[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "batch", msg.Type)
	_, err := uuid.Parse(msg.MessageId)
	require.NoError(t, err)

	job, err := queue.Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, queue.Job{Kind: queue.KindBatch, BatchID: "b1", TransactionIDs: []int64{4, 5}}, job)
}

func TestPublisherWrapsBrokerErrors(t *testing.T) {
	p := queue.NewPublisher(&channelStub{err: errors.New("channel closed")}, "q", zap.NewNop())
	err := p.DispatchPayment(context.Background(), models.Transaction{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish single job")
}

func TestDecodeRejectsMalformedJobs(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"kind":"teleport"}`,
		`{"kind":"single","transaction_ids":[]}`,
		`{"kind":"batch"}`,
		`{"kind":"ingest","ingest":{"batch_id":"b1"}}`,
	} {
		_, err := queue.Decode([]byte(body))
		assert.ErrorIs(t, err, queue.ErrMalformedJob, body)
	}
}

type handlerFunc func(context.Context, queue.Job) error

func (f handlerFunc) Handle(ctx context.Context, j queue.Job) error { return f(ctx, j) }

func TestProcessOutcomes(t *testing.T) {
	ok := handlerFunc(func(context.Context, queue.Job) error { return nil })
	failing := handlerFunc(func(context.Context, queue.Job) error { return errors.New("db down") })
	body, err := queue.Encode(queue.Job{Kind: queue.KindSingle, TransactionIDs: []int64{1}})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, queue.OutcomeAck, queue.Process(ctx, ok, body, false))
	assert.Equal(t, queue.OutcomeRetry, queue.Process(ctx, failing, body, false))
	assert.Equal(t, queue.OutcomeReject, queue.Process(ctx, failing, body, true))
	assert.Equal(t, queue.OutcomeReject, queue.Process(ctx, ok, []byte("{"), false))
}

type ackRecorder struct {
	acks, nacks, requeues int
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	if requeue {
		a.requeues++
	}
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { a.nacks++; return nil }

func TestConsumerFinishesInFlightJobAfterShutdown(t *testing.T) {
	body, err := queue.Encode(queue.Job{Kind: queue.KindSingle, TransactionIDs: []int64{1}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runErr error
	h := handlerFunc(func(ctx context.Context, _ queue.Job) error {
		runErr = ctx.Err()
		return nil
	})
	acker := &ackRecorder{}
	c := queue.NewConsumer(nil, "payments", 1, zap.NewNop())

	c.ProcessDelivery(ctx, h, amqp.Delivery{Acknowledger: acker, Body: body, Type: string(queue.KindSingle)})

	assert.NoError(t, runErr)
	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.nacks)
}

type paymentsStub struct {
	single []models.Transaction
	batch  [][]models.Transaction
}

func (p *paymentsStub) ExecutePayment(_ context.Context, tx models.Transaction) usecase.Outcome {
	p.single = append(p.single, tx)
	return usecase.Outcome{TransactionID: tx.ID, Status: models.StatusPaid}
}

func (p *paymentsStub) ExecuteBatch(_ context.Context, txs []models.Transaction) usecase.BatchOutcome {
	p.batch = append(p.batch, txs)
	return usecase.BatchOutcome{BatchID: txs[0].BatchID}
}

type ingestStub struct{ reqs []usecase.IngestRequest }

func (i *ingestStub) Submit(context.Context, string, string) (string, error) { return "", nil }

func (i *ingestStub) ProcessInvoice(_ context.Context, req usecase.IngestRequest) usecase.IngestResult {
	i.reqs = append(i.reqs, req)
	return usecase.IngestResult{BatchID: req.BatchID}
}

func TestRunnerLoadsCurrentRows(t *testing.T) {
	repo := memory.NewTransactionRepo()
	account := "123"
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 2; i++ {
		tx := models.NewTransaction("b1", "alice", models.Candidate{Vendor: "Acme", Amount: decimal.NewFromInt(10), AccountNumber: &account})
		_, err := repo.Insert(ctx, tx)
		require.NoError(t, err)
		require.NoError(t, repo.TransitionStatus(ctx, tx.ID, models.StatusQueuedForPayment))
		ids = append(ids, tx.ID)
	}

	payments := &paymentsStub{}
	ingest := &ingestStub{}
	r := queue.NewRunner(repo, ingest, payments, zap.NewNop())

	require.NoError(t, r.Handle(ctx, queue.Job{Kind: queue.KindBatch, BatchID: "b1", TransactionIDs: append(ids, 99)}))
	require.Len(t, payments.batch, 1)
	require.Len(t, payments.batch[0], 2)
	assert.Equal(t, models.StatusQueuedForPayment, payments.batch[0][0].Status)

	require.NoError(t, r.Handle(ctx, queue.Job{Kind: queue.KindSingle, TransactionIDs: []int64{ids[1]}}))
	require.Len(t, payments.single, 1)
	assert.Equal(t, ids[1], payments.single[0].ID)

	require.NoError(t, r.Handle(ctx, queue.Job{Kind: queue.KindSingle, TransactionIDs: []int64{99}}))
	assert.Len(t, payments.single, 1)

	req := usecase.IngestRequest{BatchID: "b2", FilePath: "a.pdf", Owner: "alice"}
	require.NoError(t, r.Handle(ctx, queue.IngestJob(req)))
	assert.Equal(t, []usecase.IngestRequest{req}, ingest.reqs)
}
