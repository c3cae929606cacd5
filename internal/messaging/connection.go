package messaging

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"tablestack/internal/logger"
)

const (
	KitchenExchange = "kitchen_topic"
	ExpoQueue       = "kitchen_expo_queue"
)

// StationQueue returns the durable queue name for a prep station.
func StationQueue(station string) string {
	return "kitchen_station_" + station
}

// StationRoutingKey returns the routing key for a station's ticket messages.
func StationRoutingKey(station string) string {
	return "kitchen." + station + ".sent"
}

// Connection wraps a RabbitMQ connection with retry and topology setup.
type Connection struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	url      string
	stations []string
	log      *logger.Logger
}

func New(url string, stations []string, log *logger.Logger) (*Connection, error) {
	c := &Connection{url: url, stations: stations, log: log}
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect() error {
	const maxRetries = 5
	var err error

	for i := 0; i < maxRetries; i++ {
		c.conn, err = amqp091.Dial(c.url)
		if err == nil {
			c.channel, err = c.conn.Channel()
			if err == nil {
				if setupErr := c.setupTopology(); setupErr != nil {
					c.close()
					err = setupErr
				} else {
					return nil
				}
			} else {
				c.conn.Close()
			}
		}

		if i < maxRetries-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			c.log.Error("rabbitmq_connect_failed",
				fmt.Sprintf("connect failed, retrying in %v", wait), err, nil)
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// setupTopology declares the kitchen topic exchange, one durable queue per
// prep station and the expo queue receiving order-level ready/bump events.
func (c *Connection) setupTopology() error {
	err := c.channel.ExchangeDeclare(
		KitchenExchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", KitchenExchange, err)
	}

	for _, station := range c.stations {
		queue := StationQueue(station)
		if _, err := c.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		bindKey := "kitchen." + station + ".*"
		if err := c.channel.QueueBind(queue, bindKey, KitchenExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue, err)
		}
	}

	if _, err := c.channel.QueueDeclare(ExpoQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ExpoQueue, err)
	}
	if err := c.channel.QueueBind(ExpoQueue, "kitchen.order.*", KitchenExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", ExpoQueue, err)
	}

	return nil
}

func (c *Connection) Channel() *amqp091.Channel {
	return c.channel
}

func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

func (c *Connection) Reconnect() error {
	c.close()
	return c.connect()
}

func (c *Connection) Close() error {
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
