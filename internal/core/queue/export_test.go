package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

func (c *Consumer) ProcessDelivery(ctx context.Context, h Handler, d amqp.Delivery) {
	c.process(ctx, h, d)
}
