// Package catalog is the read model of events and ticket tiers. The
// registration core only reads it; the feed import is the single writer.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

type Store struct {
	Bun *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{Bun: db}
}

// GetEvent loads an event with its tiers ordered by price.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := s.Bun.NewSelect().
		Model(&event).
		Relation("Tiers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("price ASC", "id ASC")
		}).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := s.Bun.NewSelect().
		Model(&events).
		Relation("Tiers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("price ASC", "id ASC")
		}).
		Order("start_time ASC").
		Scan(ctx)
	return events, err
}

// UpsertEvent writes an event and its tiers in one transaction. Tiers that
// disappeared from the feed are kept, since registrations may point at them.
func (s *Store) UpsertEvent(ctx context.Context, event *models.Event) error {
	return s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(event).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("start_time = EXCLUDED.start_time").
			Set("end_time = EXCLUDED.end_time").
			Set("location = EXCLUDED.location").
			Set("category = EXCLUDED.category").
			Set("base_price = EXCLUDED.base_price").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert event %s: %w", event.ID, err)
		}

		for _, tier := range event.Tiers {
			tier.EventID = event.ID
			_, err := tx.NewInsert().
				Model(tier).
				On("CONFLICT (event_id, id) DO UPDATE").
				Set("name = EXCLUDED.name").
				Set("price = EXCLUDED.price").
				Set("capacity = EXCLUDED.capacity").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("upsert tier %s/%s: %w", event.ID, tier.ID, err)
			}
		}
		return nil
	})
}
