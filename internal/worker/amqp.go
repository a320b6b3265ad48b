package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"montage/internal/logging"
)

// amqpQueue is the broker-backed queue driver. Tasks are published as
// persistent JSON messages on a durable queue so queued work survives broker
// restarts.
type amqpQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
	logger  *slog.Logger
}

// NewAMQPQueue connects to the broker and declares the durable task queue.
func NewAMQPQueue(url, name string, logger *slog.Logger) (Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &amqpQueue{conn: conn, channel: channel, name: name, logger: logger}, nil
}

func (q *amqpQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	err = q.channel.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

func (q *amqpQueue) Consume(ctx context.Context) (<-chan Task, error) {
	deliveries, err := q.channel.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue %s: %w", q.name, err)
	}

	tasks := make(chan Task)
	go func() {
		defer close(tasks)
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				var task Task
				if err := json.Unmarshal(delivery.Body, &task); err != nil {
					if q.logger != nil {
						q.logger.Warn("dropping undecodable task", logging.Error(err))
					}
					_ = delivery.Nack(false, false)
					continue
				}
				select {
				case tasks <- task:
					_ = delivery.Ack(false)
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				}
			}
		}
	}()
	return tasks, nil
}

func (q *amqpQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
