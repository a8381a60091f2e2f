package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-registration/internal/analytics"
	"ms-registration/internal/catalog"
	"ms-registration/internal/models"
	regdb "ms-registration/internal/registration/db"
	ticketdb "ms-registration/internal/tickets/db"
)

func intPtr(v int) *int { return &v }

type fixture struct {
	bun     *bun.DB
	regs    *regdb.DB
	tickets *ticketdb.DB
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	regs := &regdb.DB{Bun: bunDB}
	require.NoError(t, regs.CreateSchema(ctx))
	require.NoError(t, catalog.NewStore(bunDB).UpsertEvent(ctx, &models.Event{
		ID:        "E7",
		Title:     "DevFest",
		StartTime: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
		Tiers: []*models.Tier{
			{ID: "vip", Name: "VIP", Price: 150, Capacity: intPtr(10)},
			{ID: "free", Name: "Free", Price: 0, Capacity: intPtr(50)},
			{ID: "tbd", Name: "Unannounced", Price: 20},
		},
	}))
	return fixture{bun: bunDB, regs: regs, tickets: &ticketdb.DB{Bun: bunDB}}
}

func (f fixture) register(t *testing.T, email, tierID string, qty int, price float64, at time.Time) *models.Registration {
	t.Helper()
	reg := &models.Registration{
		ID:                 uuid.NewString(),
		EventID:            "E7",
		IdentityKey:        models.Identity{Email: email}.Key(),
		Email:              email,
		Kind:               models.KindIndividual,
		FullName:           email,
		TierID:             tierID,
		TierName:           tierID,
		Quantity:           qty,
		UnitPrice:          price,
		TotalPrice:         price * float64(qty),
		AttendanceStatus:   models.NotAttended,
		VerificationStatus: models.VerificationPending,
		Token:              uuid.NewString()[:8],
		CreatedAt:          at,
	}
	require.NoError(t, f.regs.CreateRegistration(context.Background(), reg))
	return reg
}

func TestGetEventSummary(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	day1 := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	first := f.register(t, "a@b.co", "vip", 2, 150, day1)
	f.register(t, "c@d.co", "free", 1, 0, day1.Add(time.Hour))
	f.register(t, "e@f.co", "vip", 1, 150, day2)
	require.NoError(t, f.tickets.MarkAttended(ctx, first.ID, day2))

	summary, err := analytics.NewService(f.bun).GetEventSummary(ctx, "E7")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Registrations)
	assert.Equal(t, 4, summary.Seats)
	assert.Equal(t, 450.0, summary.Revenue)
	assert.Equal(t, 1, summary.CheckedIn)

	require.Len(t, summary.ByTier, 3)
	assert.Equal(t, "free", summary.ByTier[0].TierID)
	assert.Equal(t, 1, summary.ByTier[0].Seats)
	assert.Equal(t, "tbd", summary.ByTier[1].TierID)
	assert.Zero(t, summary.ByTier[1].Registrations)
	assert.Nil(t, summary.ByTier[1].Capacity)
	vip := summary.ByTier[2]
	assert.Equal(t, analytics.TierSummary{
		TierID: "vip", TierName: "VIP", Capacity: intPtr(10),
		Registrations: 2, Seats: 3, Revenue: 450, CheckedIn: 1,
	}, vip)

	assert.Equal(t, []analytics.DailyMetrics{
		{Date: "2025-08-01", Registrations: 2, Seats: 3, Revenue: 300},
		{Date: "2025-08-02", Registrations: 1, Seats: 1, Revenue: 150},
	}, summary.Daily)
}

func TestGetEventSummaryEmptyAndMissing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	svc := analytics.NewService(f.bun)

	summary, err := svc.GetEventSummary(ctx, "E7")
	require.NoError(t, err)
	assert.Zero(t, summary.Seats)
	assert.Len(t, summary.ByTier, 3)
	assert.Empty(t, summary.Daily)

	_, err = svc.GetEventSummary(ctx, "nope")
	assert.ErrorIs(t, err, analytics.ErrEventNotFound)
}

func TestListRegistrations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	base := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	a := f.register(t, "a@b.co", "vip", 1, 150, base)
	b := f.register(t, "c@d.co", "free", 1, 0, base.Add(time.Minute))
	c := f.register(t, "e@f.co", "vip", 3, 150, base.Add(2*time.Minute))
	require.NoError(t, f.tickets.MarkAttended(ctx, b.ID, base))
	svc := analytics.NewService(f.bun)

	rows, err := svc.ListRegistrations(ctx, "E7", analytics.RegistrationListOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(rows))

	rows, err = svc.ListRegistrations(ctx, "E7", analytics.RegistrationListOptions{SortBy: "total_price", SortDesc: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids(rows))

	rows, err = svc.ListRegistrations(ctx, "E7", analytics.RegistrationListOptions{TierID: "vip", Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids(rows))

	rows, err = svc.ListRegistrations(ctx, "E7", analytics.RegistrationListOptions{Attendance: models.Attended})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(rows))

	_, err = svc.ListRegistrations(ctx, "nope", analytics.RegistrationListOptions{})
	assert.ErrorIs(t, err, analytics.ErrEventNotFound)
}

func ids(rows []analytics.RegistrationRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.RegistrationID
	}
	return out
}
