package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"tablestack/internal/logger"
)

// Publisher pushes JSON messages to the kitchen topic exchange. Delivery is
// at-least-once: messages are persistent and displays reconcile by polling.
type Publisher struct {
	conn *Connection
	log  *logger.Logger
}

func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{conn: conn, log: log}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(
		ctx,
		KitchenExchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.log.Error("message_publish_failed",
			fmt.Sprintf("failed to publish to %s", routingKey), err,
			map[string]any{"routing_key": routingKey})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.log.Debug("message_published", "published kitchen message", map[string]any{
		"routing_key":  routingKey,
		"message_size": len(body),
	})
	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
