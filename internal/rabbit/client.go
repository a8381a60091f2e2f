// Package rabbit hands ticket delivery jobs to RabbitMQ. Sending the email
// or SMS is the consumer's job, not this service's.
package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ms-registration/internal/logger"
)

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	log      *logger.Logger
}

// NewClient connects and declares a durable direct exchange bound to a
// durable queue.
func NewClient(url, exchange, queue string, log *logger.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		log.Error("RABBIT", fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		log.Error("RABBIT", fmt.Sprintf("Failed to open RabbitMQ channel: %v", err))
		return nil, err
	}

	client := &Client{conn: conn, channel: ch, exchange: exchange, queue: queue, log: log}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}

	log.Info("RABBIT", fmt.Sprintf("RabbitMQ initialized (exchange=%s, queue=%s)", exchange, queue))
	return client, nil
}

// Publish sends a persistent JSON message routed to the delivery queue.
func (c *Client) Publish(ctx context.Context, body []byte) error {
	err := c.channel.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		c.log.Error("RABBIT", fmt.Sprintf("Failed to publish to %s: %v", c.exchange, err))
	}
	return err
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.log.Info("RABBIT", "RabbitMQ connection closed")
}
