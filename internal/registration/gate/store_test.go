package gate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/logger"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewStore(rdb, Options{Tolerance: 6, TrackWidth: 320, PieceSize: 48, TTL: time.Minute}, logger.NewNop())
	return store, mr
}

func slotOf(t *testing.T, mr *miniredis.Miniredis, id string) storedChallenge {
	t.Helper()
	raw, err := mr.Get(challengePrefix + id)
	require.NoError(t, err)
	var stored storedChallenge
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	return stored
}

func TestStoreSolveAndRedeemOnce(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	ch, err := store.Present(ctx)
	require.NoError(t, err)
	assert.Equal(t, 320, ch.TrackWidth)

	slot := slotOf(t, mr, ch.ID)
	assert.GreaterOrEqual(t, slot.SlotX, 48)
	assert.LessOrEqual(t, slot.SlotX, 320-48)
	assert.Equal(t, slot.SlotY, ch.SlotY)

	pass, err := store.Attempt(ctx, ch.ID, slot.SlotX+3)
	require.NoError(t, err)
	assert.NotEmpty(t, pass)
	assert.False(t, mr.Exists(challengePrefix+ch.ID))

	require.NoError(t, store.Redeem(ctx, pass))
	assert.ErrorIs(t, store.Redeem(ctx, pass), ErrVerificationFailed)
}

func TestStoreFailedAttemptConsumesChallenge(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	ch, err := store.Present(ctx)
	require.NoError(t, err)
	slot := slotOf(t, mr, ch.ID)

	_, err = store.Attempt(ctx, ch.ID, slot.SlotX+40)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = store.Attempt(ctx, ch.ID, slot.SlotX)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestStoreDismissAndExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := setupStore(t)

	ch, err := store.Present(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Dismiss(ctx, ch.ID))
	assert.False(t, mr.Exists(challengePrefix+ch.ID))
	_, err = store.Attempt(ctx, ch.ID, 100)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	require.NoError(t, store.Dismiss(ctx, ch.ID))
	require.NoError(t, store.Dismiss(ctx, "never-presented"))

	ch, err = store.Present(ctx)
	require.NoError(t, err)
	slot := slotOf(t, mr, ch.ID)
	mr.FastForward(2 * time.Minute)
	_, err = store.Attempt(ctx, ch.ID, slot.SlotX)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestStoreRedeemUnknownPass(t *testing.T) {
	store, _ := setupStore(t)
	assert.ErrorIs(t, store.Redeem(context.Background(), ""), ErrVerificationFailed)
	assert.ErrorIs(t, store.Redeem(context.Background(), "not-a-pass"), ErrVerificationFailed)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr(), "", 0, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}
