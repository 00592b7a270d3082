package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Nzyazin/payagent/internal/core/logger"
	"github.com/Nzyazin/payagent/internal/core/metrics"
)

// Handler runs one job. Returning an error requeues the message once.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// Consumer pulls jobs from the queue and runs up to prefetch of them at a time,
// each on its own goroutine. Messages are acked only after the job finishes,
// so a worker crash redelivers whatever it was running.
type Consumer struct {
	channel  *amqp.Channel
	queue    string
	prefetch int
	log      logger.Logger
}

func NewConsumer(ch *amqp.Channel, queue string, prefetch int, log logger.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{channel: ch, queue: queue, prefetch: prefetch, log: log}
}

// Run consumes until ctx is cancelled or the channel closes, then waits for
// in-flight jobs to finish and settle.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume %s: %w", c.queue, err)
	}

	c.log.Info("Consumer started",
		logger.StringField("queue", c.queue),
		logger.IntField("prefetch", c.prefetch))

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				c.process(ctx, h, d)
			}(d)
		}
	}
}

// process runs a delivery to completion even after ctx is cancelled. Shutdown
// drains in-flight payments; action timeouts and the PIN deadline bound them.
func (c *Consumer) process(ctx context.Context, h Handler, d amqp.Delivery) {
	outcome := Process(context.WithoutCancel(ctx), h, d.Body, d.Redelivered)
	kind := d.Type
	if kind == "" {
		kind = "unknown"
	}
	metrics.JobsConsumed.WithLabelValues(kind, string(outcome)).Inc()

	var err error
	switch outcome {
	case OutcomeAck:
		err = d.Ack(false)
	case OutcomeRetry:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.log.Error("Failed to settle delivery",
			logger.StringField("message_id", d.MessageId),
			logger.ErrorField("error", err))
	}
}

// Outcome says how a delivery is settled with the broker.
type Outcome string

const (
	OutcomeAck    Outcome = "ack"
	OutcomeRetry  Outcome = "retry"
	OutcomeReject Outcome = "reject"
)

// Process decodes and runs one message body. Malformed messages are rejected;
// a failed job is retried once and rejected if it fails again.
func Process(ctx context.Context, h Handler, body []byte, redelivered bool) Outcome {
	job, err := Decode(body)
	if err != nil {
		return OutcomeReject
	}
	if err := h.Handle(ctx, job); err != nil {
		if redelivered {
			return OutcomeReject
		}
		return OutcomeRetry
	}
	return OutcomeAck
}
