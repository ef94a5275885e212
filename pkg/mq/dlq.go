package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"expensetracker/pkg/trace"
)

const DLQExchangeName = "events.dlq"

// DLQQueueName 死信队列名：<routing key>.dlq
func DLQQueueName(routingKey string) string {
	return routingKey + ".dlq"
}

func DeclareDLQExchange(ch *amqp091.Channel) error {
	return declareTopic(ch, DLQExchangeName)
}

// DeclareDLQQueue declares the durable dead letter queue for routingKey and
// binds it to the DLQ exchange.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(DLQQueueName(routingKey), true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("bind DLQ queue: %w", err)
	}
	return q, nil
}

// dlqHeaders 记录失败原因和时间，方便人工重放
func dlqHeaders(ctx context.Context, routingKey, originalError string, failedAt time.Time) amqp091.Table {
	h := amqp091.Table{
		"x-original-routing-key": routingKey,
		"x-original-error":       originalError,
		"x-failed-by":            ConnectionName,
		"x-failed-at":            failedAt.UTC().Format(time.RFC3339),
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		h[traceHeader] = traceID
	}
	return h
}

// PublishToDLQ publishes the raw payload to the dead letter exchange.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Headers:      dlqHeaders(ctx, routingKey, originalError, time.Now()),
	}
	return p.publish(ctx, DLQExchangeName, routingKey, msg)
}
