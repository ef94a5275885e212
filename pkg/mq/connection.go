package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName 所有业务事件共用的 topic exchange
const ExchangeName = "events"

const (
	RoutingKeyEmailSynced         = "email.synced"
	RoutingKeyForwardingCompleted = "email.forwarding.completed"
)

// ConnectionName shows up in the RabbitMQ management UI.
const ConnectionName = "forwarding-worker"

const heartbeat = 10 * time.Second

// NewConnection dials RabbitMQ with a named connection and a short heartbeat
// so a dead broker is noticed quickly.
func NewConnection(url string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(ConnectionName)

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func DeclareExchange(ch *amqp091.Channel) error {
	return declareTopic(ch, ExchangeName)
}

func declareTopic(ch *amqp091.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}
