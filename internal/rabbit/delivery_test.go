package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, body []byte) error {
	return m.Called(ctx, body).Error(0)
}

func TestEnqueueDeliveryJob(t *testing.T) {
	pub := new(mockPublisher)
	var sent []byte
	pub.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).([]byte)
	}).Return(nil)

	reg := &models.Registration{ID: "r1", EventID: "E7", Email: "a@b.co", FullName: "Rina", TierName: "VIP", Quantity: 2, Token: "AAAA2222"}
	require.NoError(t, NewDelivery(pub, logger.NewNop()).Enqueue(context.Background(), NewDeliveryJob(reg, "sealed")))

	var job DeliveryJob
	require.NoError(t, json.Unmarshal(sent, &job))
	assert.Equal(t, "AAAA2222", job.Token)
	assert.Equal(t, "a@b.co", job.Email)
	assert.Equal(t, "sealed", job.SealedPayload)
}

func TestEnqueueDeliveryFailure(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	err := NewDelivery(pub, logger.NewNop()).Enqueue(context.Background(), DeliveryJob{RegistrationID: "r1"})
	assert.ErrorContains(t, err, "r1")
}
