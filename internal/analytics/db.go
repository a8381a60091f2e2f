package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// EventExists reports whether the catalog knows eventID.
func (db *DB) EventExists(ctx context.Context, eventID string) (bool, error) {
	return db.bun.NewSelect().
		Model((*models.Event)(nil)).
		Where("id = ?", eventID).
		Exists(ctx)
}

func (db *DB) GetTiers(ctx context.Context, eventID string) ([]models.Tier, error) {
	var tiers []models.Tier
	err := db.bun.NewSelect().
		Model(&tiers).
		Where("event_id = ?", eventID).
		Order("price ASC", "id ASC").
		Scan(ctx)
	return tiers, err
}

// TierTotalsData is one row of per-tier aggregates.
type TierTotalsData struct {
	TierID        string  `bun:"tier_id"`
	Registrations int     `bun:"registrations"`
	Seats         int     `bun:"seats"`
	Revenue       float64 `bun:"revenue"`
	CheckedIn     int     `bun:"checked_in"`
}

func (db *DB) GetTierTotals(ctx context.Context, eventID string) ([]TierTotalsData, error) {
	var rows []TierTotalsData
	err := db.bun.NewSelect().
		Model((*models.Registration)(nil)).
		Column("tier_id").
		ColumnExpr("COUNT(*) AS registrations").
		ColumnExpr("COALESCE(SUM(quantity), 0) AS seats").
		ColumnExpr("COALESCE(SUM(total_price), 0) AS revenue").
		ColumnExpr("SUM(CASE WHEN attendance_status = ? THEN 1 ELSE 0 END) AS checked_in", models.Attended).
		Where("event_id = ?", eventID).
		Group("tier_id").
		Scan(ctx, &rows)
	return rows, err
}

// RegistrationDayData is the slice of a registration the daily series needs.
type RegistrationDayData struct {
	CreatedAt  time.Time `bun:"created_at"`
	Quantity   int       `bun:"quantity"`
	TotalPrice float64   `bun:"total_price"`
}

// GetRegistrationTimes loads creation times in order. Days are bucketed in Go
// so the same code serves Postgres and SQLite.
func (db *DB) GetRegistrationTimes(ctx context.Context, eventID string) ([]RegistrationDayData, error) {
	var rows []RegistrationDayData
	err := db.bun.NewSelect().
		Model((*models.Registration)(nil)).
		Column("created_at", "quantity", "total_price").
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx, &rows)
	return rows, err
}
