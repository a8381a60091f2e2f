package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RegistrationCreated is published once per new registration. The token is
// left out; it travels only on the delivery queue.
type RegistrationCreated struct {
	RegistrationID  string                 `json:"registration_id"`
	EventID         string                 `json:"event_id"`
	UserID          string                 `json:"user_id,omitempty"`
	Email           string                 `json:"email"`
	ParticipantKind models.ParticipantKind `json:"participant_kind"`
	TierID          string                 `json:"tier_id"`
	TierName        string                 `json:"tier_name"`
	Quantity        int                    `json:"quantity"`
	TotalPrice      float64                `json:"total_price"`
	CreatedAt       time.Time              `json:"created_at"`
}

func NewRegistrationCreated(reg *models.Registration) RegistrationCreated {
	return RegistrationCreated{
		RegistrationID:  reg.ID,
		EventID:         reg.EventID,
		UserID:          reg.UserID,
		Email:           reg.Email,
		ParticipantKind: reg.Kind,
		TierID:          reg.TierID,
		TierName:        reg.TierName,
		Quantity:        reg.Quantity,
		TotalPrice:      reg.TotalPrice,
		CreatedAt:       reg.CreatedAt,
	}
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

// PublishRegistrationCreated keys the message by event so one event's
// registrations stay ordered on a partition.
func (p *Producer) PublishRegistrationCreated(ctx context.Context, reg *models.Registration) error {
	msgBytes, err := json.Marshal(NewRegistrationCreated(reg))
	if err != nil {
		return err
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(reg.EventID),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("publish registration %s: %w", reg.ID, err)
	}

	p.Logger.LogKafka("PUBLISHED", "registration.created", reg.ID)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
