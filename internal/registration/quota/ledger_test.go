package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/models"
)

type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) ConfirmedCount(ctx context.Context, eventID, tierID string) (int, error) {
	args := m.Called(ctx, eventID, tierID)
	return args.Int(0), args.Error(1)
}

func intPtr(v int) *int { return &v }

func TestRemaining(t *testing.T) {
	assert.Equal(t, 0, Remaining(nil, 0))
	assert.Equal(t, 0, Remaining(intPtr(0), 0))
	assert.Equal(t, 3, Remaining(intPtr(5), 2))
	assert.Equal(t, 0, Remaining(intPtr(5), 9))
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	counter := new(mockCounter)
	counter.On("ConfirmedCount", ctx, "E7", "vip").Return(8, nil)
	ledger := NewLedger(counter)
	tier := &models.Tier{EventID: "E7", ID: "vip", Capacity: intPtr(10)}

	require.NoError(t, ledger.Reserve(ctx, tier, 2))
	err := ledger.Reserve(ctx, tier, 3)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	counter.AssertExpectations(t)
}

func TestReserveMissingCapacity(t *testing.T) {
	counter := new(mockCounter)
	ledger := NewLedger(counter)
	tier := &models.Tier{EventID: "E7", ID: "ghost"}

	remaining, err := ledger.Remaining(context.Background(), tier)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.ErrorIs(t, ledger.Reserve(context.Background(), tier, 1), ErrQuotaExceeded)
	counter.AssertNotCalled(t, "ConfirmedCount", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveCounterError(t *testing.T) {
	counter := new(mockCounter)
	counter.On("ConfirmedCount", mock.Anything, "E7", "vip").Return(0, errors.New("db down"))
	ledger := NewLedger(counter)

	err := ledger.Reserve(context.Background(), &models.Tier{EventID: "E7", ID: "vip", Capacity: intPtr(1)}, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestSnapshot(t *testing.T) {
	event := &models.Event{ID: "E7", Tiers: []*models.Tier{
		{ID: "free", Name: "Free", Capacity: intPtr(5)},
		{ID: "ghost", Name: "Ghost"},
	}}

	got := Snapshot(event, map[string]int{"free": 3})
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Remaining)
	assert.Equal(t, 0, got[1].Remaining)
	assert.Equal(t, 0, got[1].Capacity)
}
