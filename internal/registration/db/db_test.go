package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/models"
	"ms-registration/internal/registration/db"
)

func intPtr(v int) *int { return &v }

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// a single connection keeps one in-memory database and serializes writers
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	store := &db.DB{Bun: bunDB}
	require.NoError(t, store.CreateSchema(context.Background()))
	return store
}

func seedEvent(t *testing.T, store *db.DB, tiers ...*models.Tier) *models.Event {
	t.Helper()
	ctx := context.Background()
	event := &models.Event{
		ID:        "E7",
		Title:     "DevFest",
		StartTime: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
		Location:  "Jakarta",
		Category:  "tech",
	}
	_, err := store.Bun.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)
	for _, tier := range tiers {
		tier.EventID = event.ID
		_, err := store.Bun.NewInsert().Model(tier).Exec(ctx)
		require.NoError(t, err)
	}
	event.Tiers = tiers
	return event
}

func newRegistration(identity models.Identity, tierID string, quantity int, token string) *models.Registration {
	return &models.Registration{
		ID:                 uuid.NewString(),
		EventID:            "E7",
		UserID:             identity.UserID,
		IdentityKey:        identity.Key(),
		Email:              models.NormalizeEmail(identity.Email),
		Kind:               models.KindIndividual,
		FullName:           "Test Person",
		TierID:             tierID,
		TierName:           tierID,
		Quantity:           quantity,
		AttendanceStatus:   models.NotAttended,
		VerificationStatus: models.VerificationPending,
		Token:              token,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestCreateAndFindRegistration(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedEvent(t, store, &models.Tier{ID: "reg", Name: "Regular", Price: 50, Capacity: intPtr(10)})

	reg := newRegistration(models.Identity{UserID: "u-1", Email: "a@b.co"}, "reg", 2, "AAAA2222")
	reg.Members = []models.Member{{FullName: "Budi"}}
	require.NoError(t, store.CreateRegistration(ctx, reg))

	got, err := store.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAAA2222", got.Token)
	assert.Equal(t, "user:u-1", got.IdentityKey)
	assert.Equal(t, []models.Member{{FullName: "Budi"}}, got.Members)

	byUser, err := store.FindExisting(ctx, "E7", "u-1", "")
	require.NoError(t, err)
	require.NotNil(t, byUser)
	assert.Equal(t, reg.ID, byUser.ID)

	byEmail, err := store.FindExisting(ctx, "E7", "", "a@b.co")
	require.NoError(t, err)
	require.NotNil(t, byEmail)

	none, err := store.FindExisting(ctx, "E8", "u-1", "a@b.co")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = store.GetRegistration(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCreateRegistrationUniqueness(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedEvent(t, store, &models.Tier{ID: "reg", Name: "Regular", Capacity: intPtr(10)})

	require.NoError(t, store.CreateRegistration(ctx, newRegistration(models.Identity{UserID: "u-1", Email: "a@b.co"}, "reg", 1, "AAAA2222")))

	err := store.CreateRegistration(ctx, newRegistration(models.Identity{UserID: "u-1", Email: "other@b.co"}, "reg", 1, "BBBB2222"))
	assert.ErrorIs(t, err, db.ErrIdentityTaken)

	err = store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "A@b.co"}, "reg", 1, "CCCC2222"))
	assert.ErrorIs(t, err, db.ErrIdentityTaken)

	err = store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "new@b.co"}, "reg", 1, "AAAA2222"))
	assert.ErrorIs(t, err, db.ErrTokenTaken)

	count, err := store.ConfirmedCount(ctx, "E7", "reg")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateRegistrationCapacity(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedEvent(t, store,
		&models.Tier{ID: "free", Name: "Free", Price: 0, Capacity: intPtr(4)},
		&models.Tier{ID: "ghost", Name: "Unlisted"},
	)

	require.NoError(t, store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "a@b.co"}, "free", 3, "AAAA2222")))

	err := store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "c@d.co"}, "free", 2, "BBBB2222"))
	assert.ErrorIs(t, err, db.ErrTierFull)
	require.NoError(t, store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "c@d.co"}, "free", 1, "BBBB2222")))

	err = store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "e@f.co"}, "ghost", 1, "CCCC2222"))
	assert.ErrorIs(t, err, db.ErrTierFull)

	err = store.CreateRegistration(ctx, newRegistration(models.Identity{Email: "e@f.co"}, "nope", 1, "CCCC2222"))
	assert.ErrorIs(t, err, db.ErrTierNotFound)

	counts, err := store.ConfirmedCounts(ctx, "E7")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"free": 4}, counts)
}

func TestCreateRegistrationConcurrentLastSeat(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedEvent(t, store, &models.Tier{ID: "solo", Name: "Solo", Capacity: intPtr(1)})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity := models.Identity{Email: fmt.Sprintf("p%d@b.co", i)}
			errs[i] = store.CreateRegistration(ctx, newRegistration(identity, "solo", 1, fmt.Sprintf("TOKEN%03d", i)))
		}(i)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, db.ErrTierFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)
}

func TestListByEvent(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)
	seedEvent(t, store, &models.Tier{ID: "reg", Name: "Regular", Capacity: intPtr(10)})

	first := newRegistration(models.Identity{Email: "a@b.co"}, "reg", 1, "AAAA2222")
	second := newRegistration(models.Identity{Email: "c@d.co"}, "reg", 1, "BBBB2222")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, store.CreateRegistration(ctx, first))
	require.NoError(t, store.CreateRegistration(ctx, second))

	regs, err := store.ListByEvent(ctx, "E7")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, first.ID, regs[0].ID)
}
