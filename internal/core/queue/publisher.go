package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/models"
	"github.com/Nzyazin/payagent/internal/core/usecase"
)

const publishTimeout = 5 * time.Second

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends jobs to the default exchange, routed straight to the queue.
type Publisher struct {
	mu      sync.Mutex
	channel Channel
	queue   string
	log     logger.Logger
}

var _ usecase.Dispatcher = (*Publisher)(nil)

func NewPublisher(ch Channel, queue string, log logger.Logger) *Publisher {
	return &Publisher{channel: ch, queue: queue, log: log}
}

func (p *Publisher) DispatchPayment(ctx context.Context, tx models.Transaction) error {
	return p.Publish(ctx, PaymentJob(tx))
}

func (p *Publisher) DispatchBatch(ctx context.Context, batchID string, txs []models.Transaction) error {
	return p.Publish(ctx, BatchJob(batchID, txs))
}

func (p *Publisher) DispatchIngest(ctx context.Context, req usecase.IngestRequest) error {
	return p.Publish(ctx, IngestJob(req))
}

func (p *Publisher) Publish(ctx context.Context, job Job) error {
	body, err := Encode(job)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	id := uuid.NewString()
	p.mu.Lock()
	err = p.channel.PublishWithContext(pubCtx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Type:         string(job.Kind),
		Headers: amqp.Table{
			"batch_id": job.BatchID,
		},
	})
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s job: %w", job.Kind, err)
	}

	p.log.Info("Job published",
		logger.StringField("message_id", id),
		logger.StringField("kind", string(job.Kind)),
		logger.StringField("batch_id", job.BatchID))
	return nil
}
