package duplicate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/models"
)

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) FindExisting(ctx context.Context, eventID, userID, email string) (*models.Registration, error) {
	args := m.Called(ctx, eventID, userID, email)
	if reg := args.Get(0); reg != nil {
		return reg.(*models.Registration), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestHasExistingNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	finder := new(mockFinder)
	finder.On("FindExisting", ctx, "E7", "", "rina@mail.com").Return(&models.Registration{ID: "r1", Token: "TOKEN234"}, nil)
	guard := NewGuard(finder)

	found, err := guard.HasExisting(ctx, "E7", models.Identity{Email: " Rina@Mail.com"})
	require.NoError(t, err)
	assert.True(t, found)

	reg, err := guard.Existing(ctx, "E7", models.Identity{Email: "rina@mail.com"})
	require.NoError(t, err)
	assert.Equal(t, "TOKEN234", reg.Token)
	finder.AssertExpectations(t)
}

func TestHasExistingMiss(t *testing.T) {
	finder := new(mockFinder)
	finder.On("FindExisting", mock.Anything, "E7", "u-1", "a@b.co").Return(nil, nil)

	found, err := NewGuard(finder).HasExisting(context.Background(), "E7", models.Identity{UserID: "u-1", Email: "a@b.co"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHasExistingEmptyIdentity(t *testing.T) {
	finder := new(mockFinder)

	found, err := NewGuard(finder).HasExisting(context.Background(), "E7", models.Identity{})
	require.NoError(t, err)
	assert.False(t, found)
	finder.AssertNotCalled(t, "FindExisting", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHasExistingError(t *testing.T) {
	finder := new(mockFinder)
	finder.On("FindExisting", mock.Anything, "E7", "u-1", "").Return(nil, errors.New("timeout"))

	_, err := NewGuard(finder).HasExisting(context.Background(), "E7", models.Identity{UserID: "u-1"})
	assert.Error(t, err)
}
