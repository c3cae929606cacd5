package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MessageHandler processes one delivered message body.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer reads a station or expo queue with manual acknowledgement. Failed
// handlers nack with requeue, giving at-least-once semantics.
type Consumer struct {
	conn        *Connection
	queueName   string
	consumerTag string
	prefetch    int
}

func NewConsumer(conn *Connection, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		conn:        conn,
		queueName:   queueName,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	if c.conn.IsClosed() {
		if err := c.conn.Reconnect(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	if err := c.conn.Channel().Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.conn.Channel().Consume(
		c.queueName,
		c.consumerTag,
		false, // auto-ack off, we ack manually
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.conn.log.Info("consumer_started", "consuming from queue", map[string]any{
		"queue": c.queueName, "consumer": c.consumerTag, "prefetch": c.prefetch,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				c.conn.log.Error("consumer_channel_closed", "message channel closed, reconnecting", nil, nil)
				if err := c.conn.Reconnect(); err != nil {
					return fmt.Errorf("failed to reconnect after channel closed: %w", err)
				}
				return c.Start(ctx, handler)
			}

			handlerCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := handler(handlerCtx, d.Body)
			cancel()

			if err != nil {
				c.conn.log.Error("message_processing_failed", "handler failed, requeueing", err,
					map[string]any{"queue": c.queueName, "routing_key": d.RoutingKey})
				_ = d.Nack(false, true)
			} else {
				_ = d.Ack(false)
			}
		}
	}
}

// ParseMessage decodes a JSON message body.
func ParseMessage(body []byte, v interface{}) error {
	return json.Unmarshal(body, v)
}

func (c *Consumer) Close() error {
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Channel().Cancel(c.consumerTag, false)
		return c.conn.Close()
	}
	return nil
}
