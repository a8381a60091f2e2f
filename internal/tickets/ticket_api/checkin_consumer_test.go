package ticket_api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/metrics"
	"ms-registration/internal/models"
	ticketdb "ms-registration/internal/tickets/db"
	tickets "ms-registration/internal/tickets/service"
)

func TestKafkaCheckin(t *testing.T) {
	_, svc, reg := setupRouter(t)
	handle := KafkaCheckin(svc, metrics.New(), logger.NewNop())
	ctx := context.Background()

	forged := kafka.CheckinMessage{TicketPayload: models.TicketPayload{
		RegistrationID: reg.ID, Token: "WRONG000", EventID: reg.EventID, Email: reg.Email,
	}}
	assert.ErrorIs(t, handle(ctx, forged), tickets.ErrInvalidTicket)

	missing := kafka.CheckinMessage{TicketPayload: models.TicketPayload{RegistrationID: "nope"}}
	assert.ErrorIs(t, handle(ctx, missing), tickets.ErrTicketNotFound)

	scan := kafka.CheckinMessage{TicketPayload: reg.TicketPayload(), ScannerID: "gate-1", ScannedAt: time.Now()}
	require.NoError(t, handle(ctx, scan))
	assert.ErrorIs(t, handle(ctx, scan), tickets.ErrAlreadyCheckedIn)

	got, err := svc.Get(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Attended, got.AttendanceStatus)
}

func TestKafkaCheckinStoreFailureIsRetryable(t *testing.T) {
	_, svc, reg := setupRouter(t)
	svc.DB = unreachableStore{}
	handle := KafkaCheckin(svc, metrics.New(), logger.NewNop())

	err := handle(context.Background(), kafka.CheckinMessage{TicketPayload: reg.TicketPayload()})
	assert.ErrorIs(t, err, kafka.ErrRetry)
	assert.NotErrorIs(t, err, tickets.ErrTicketNotFound)
}

type unreachableStore struct{}

func (unreachableStore) GetRegistration(context.Context, string) (*models.Registration, error) {
	return nil, errors.New("dial tcp 127.0.0.1:5432: connection refused")
}

func (unreachableStore) MarkAttended(context.Context, string, time.Time) error {
	return errors.New("dial tcp 127.0.0.1:5432: connection refused")
}

func (unreachableStore) GetAttendanceCount(context.Context, string) (ticketdb.AttendanceCount, error) {
	return ticketdb.AttendanceCount{}, errors.New("dial tcp 127.0.0.1:5432: connection refused")
}
