package rabbit

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// DeliveryJob is everything a mailer needs to send the ticket.
type DeliveryJob struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	TierName       string `json:"tier_name"`
	Quantity       int    `json:"quantity"`
	Token          string `json:"token"`
	// SealedPayload is the encrypted QR content for the ticket.
	SealedPayload string `json:"sealed_payload"`
}

func NewDeliveryJob(reg *models.Registration, sealed string) DeliveryJob {
	return DeliveryJob{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		Email:          reg.Email,
		FullName:       reg.FullName,
		TierName:       reg.TierName,
		Quantity:       reg.Quantity,
		Token:          reg.Token,
		SealedPayload:  sealed,
	}
}

type Delivery struct {
	pub Publisher
	log *logger.Logger
}

func NewDelivery(pub Publisher, log *logger.Logger) *Delivery {
	return &Delivery{pub: pub, log: log}
}

func (d *Delivery) Enqueue(ctx context.Context, job DeliveryJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := d.pub.Publish(ctx, body); err != nil {
		return fmt.Errorf("enqueue delivery for %s: %w", job.RegistrationID, err)
	}
	d.log.LogRegistration("DELIVERY_QUEUED", job.RegistrationID, "ticket delivery job queued")
	return nil
}
