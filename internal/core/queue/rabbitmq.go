package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ holds the connection and channel shared by a publisher or consumer.
type RabbitMQ struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	URL        string
	Queue      string
}

func NewRabbitMQ(url, queue string) *RabbitMQ {
	return &RabbitMQ{URL: url, Queue: queue}
}

// Connect dials the broker and declares the durable job queue.
func (r *RabbitMQ) Connect() error {
	conn, err := amqp.Dial(r.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(r.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq declare queue %s: %w", r.Queue, err)
	}

	r.Connection = conn
	r.Channel = ch
	return nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.Connection != nil {
		r.Connection.Close()
	}
}
