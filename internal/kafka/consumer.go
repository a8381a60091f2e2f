package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CheckinMessage is sent by gate scanners. It carries the ticket payload as
// read from the QR code.
type CheckinMessage struct {
	models.TicketPayload
	ScannerID string    `json:"scanner_id,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

type CheckinHandler func(ctx context.Context, msg CheckinMessage) error

// ErrRetry marks a handler failure worth retrying, such as the database
// being unreachable. Wrap it with fmt.Errorf("%w: ...", ErrRetry).
var ErrRetry = errors.New("retryable check-in failure")

const maxRetryBackoff = 30 * time.Second

type Consumer struct {
	reader  MessageReader
	log     *logger.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, log: log, backoff: time.Second}
}

// Run consumes until ctx is cancelled. A message is committed once the
// handler reaches a final answer: success, a rejected check-in, or an
// undecodable payload. ErrRetry failures are retried in place with backoff
// and left uncommitted if ctx ends first.
func (c *Consumer) Run(ctx context.Context, handle CheckinHandler) error {
	c.log.Info("KAFKA", "Check-in consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("KAFKA", "Check-in consumer stopped")
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			if !c.wait(ctx, time.Second) {
				return nil
			}
			continue
		}

		var checkin CheckinMessage
		if err := json.Unmarshal(msg.Value, &checkin); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Dropping undecodable check-in at offset %d: %v", msg.Offset, err))
		} else if !c.handle(ctx, msg, checkin, handle) {
			c.log.Info("KAFKA", fmt.Sprintf("Check-in consumer stopped before offset %d was handled", msg.Offset))
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("KAFKA", fmt.Sprintf("Commit failed at offset %d: %v", msg.Offset, err))
		}
	}
}

// handle reports false when ctx ended while a retryable failure was pending.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, checkin CheckinMessage, handle CheckinHandler) bool {
	backoff := c.backoff
	for {
		err := handle(ctx, checkin)
		switch {
		case err == nil:
			c.log.LogKafka("CONSUMED", msg.Topic, checkin.RegistrationID)
			return true
		case errors.Is(err, ErrRetry):
			c.log.Warn("KAFKA", fmt.Sprintf("Check-in %s at offset %d failed, retrying in %s: %v", checkin.RegistrationID, msg.Offset, backoff, err))
			if !c.wait(ctx, backoff) {
				return false
			}
			if backoff *= 2; backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
		default:
			c.log.LogKafka("REJECTED", msg.Topic, fmt.Sprintf("registration %s: %v", checkin.RegistrationID, err))
			return true
		}
	}
}

func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
