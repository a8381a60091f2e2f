package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-registration/internal/models"
	"ms-registration/internal/registration/quota"
)

var (
	ErrNotFound      = errors.New("registration not found")
	ErrTierNotFound  = errors.New("ticket tier not found")
	ErrTierFull      = errors.New("ticket tier has no room for this quantity")
	ErrIdentityTaken = errors.New("identity already registered for event")
	ErrTokenTaken    = errors.New("token already used for event")
)

// Unique index names. The Postgres migrations create the same names.
const (
	IndexIdentity = "uq_registrations_event_identity_key"
	IndexEmail    = "uq_registrations_event_email"
	IndexToken    = "uq_registrations_event_token"
)

type DB struct {
	Bun *bun.DB
}

// CreateSchema creates the tables and unique indexes from the models. The
// Postgres deployment uses the SQL migrations instead.
func (d *DB) CreateSchema(ctx context.Context) error {
	for _, model := range []interface{}{(*models.Event)(nil), (*models.Tier)(nil), (*models.Registration)(nil)} {
		if _, err := d.Bun.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		name    string
		columns []string
	}{
		{IndexIdentity, []string{"event_id", "identity_key"}},
		{IndexEmail, []string{"event_id", "email"}},
		{IndexToken, []string{"event_id", "token"}},
	}
	for _, idx := range indexes {
		_, err := d.Bun.NewCreateIndex().
			Model((*models.Registration)(nil)).
			Unique().
			IfNotExists().
			Index(idx.name).
			Column(idx.columns...).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// CreateRegistration inserts reg if its tier still has room for reg.Quantity.
// Remaining seats are re-derived in the same transaction, with the tier row
// locked on Postgres.
func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var tier models.Tier
		q := tx.NewSelect().
			Model(&tier).
			Where("event_id = ?", reg.EventID).
			Where("id = ?", reg.TierID).
			Limit(1)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTierNotFound
			}
			return err
		}

		taken, err := seatsTaken(ctx, tx, reg.EventID, reg.TierID)
		if err != nil {
			return err
		}
		if reg.Quantity > quota.Remaining(tier.Capacity, taken) {
			return ErrTierFull
		}

		if _, err := tx.NewInsert().Model(reg).Exec(ctx); err != nil {
			return classify(err)
		}
		return nil
	})
}

func seatsTaken(ctx context.Context, idb bun.IDB, eventID, tierID string) (int, error) {
	var taken int
	err := idb.NewSelect().
		Model((*models.Registration)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Scan(ctx, &taken)
	return taken, err
}

// ConfirmedCount is the number of seats already registered on a tier.
func (d *DB) ConfirmedCount(ctx context.Context, eventID, tierID string) (int, error) {
	return seatsTaken(ctx, d.Bun, eventID, tierID)
}

type tierSeats struct {
	TierID string `bun:"tier_id"`
	Seats  int    `bun:"seats"`
}

// ConfirmedCounts returns registered seats keyed by tier id.
func (d *DB) ConfirmedCounts(ctx context.Context, eventID string) (map[string]int, error) {
	var rows []tierSeats
	err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Column("tier_id").
		ColumnExpr("SUM(quantity) AS seats").
		Where("event_id = ?", eventID).
		Group("tier_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.TierID] = r.Seats
	}
	return counts, nil
}

// FindExisting returns the registration of eventID matching userID or email,
// or nil when there is none.
func (d *DB) FindExisting(ctx context.Context, eventID, userID, email string) (*models.Registration, error) {
	if userID == "" && email == "" {
		return nil, nil
	}

	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("event_id = ?", eventID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if userID != "" {
				q = q.WhereOr("user_id = ?", userID)
			}
			if email != "" {
				q = q.WhereOr("email = ?", email)
			}
			return q
		}).
		Order("created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	return regs, err
}

// classify maps unique violations from Postgres (lib/pq) or SQLite onto the
// store's sentinel errors.
func classify(err error) error {
	var detail string

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != "23505" {
			return err
		}
		detail = pqErr.Constraint + " " + pqErr.Message
	} else {
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate key") {
			return err
		}
		detail = msg
	}

	if strings.Contains(detail, "token") {
		return fmt.Errorf("%w: %v", ErrTokenTaken, err)
	}
	return fmt.Errorf("%w: %v", ErrIdentityTaken, err)
}
