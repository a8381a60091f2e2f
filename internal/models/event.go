package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is the catalog read model. It is written only by the catalog import.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string     `bun:"id,pk" json:"id" yaml:"id"`
	Title     string     `bun:"title,notnull" json:"title" yaml:"title"`
	StartTime time.Time  `bun:"start_time,notnull" json:"start" yaml:"start"`
	EndTime   *time.Time `bun:"end_time" json:"end,omitempty" yaml:"end,omitempty"`
	Location  string     `bun:"location" json:"location" yaml:"location"`
	Category  string     `bun:"category" json:"category" yaml:"category"`
	BasePrice float64    `bun:"base_price" json:"base_price" yaml:"base_price"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"-" yaml:"-"`

	Tiers []*Tier `bun:"rel:has-many,join:id=event_id" json:"tiers" yaml:"tiers"`
}

// Tier is a named ticket option. A nil Capacity means the feed did not supply one.
type Tier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	EventID  string  `bun:"event_id,pk" json:"event_id" yaml:"-"`
	ID       string  `bun:"id,pk" json:"id" yaml:"id"`
	Name     string  `bun:"name,notnull" json:"name" yaml:"name"`
	Price    float64 `bun:"price,notnull" json:"price" yaml:"price"`
	Capacity *int    `bun:"capacity" json:"capacity" yaml:"capacity"`
}

// EffectiveEnd returns the end time, or the start time when the event has none.
func (e *Event) EffectiveEnd() time.Time {
	if e.EndTime == nil {
		return e.StartTime
	}
	return *e.EndTime
}

func (e *Event) Tier(id string) *Tier {
	for _, t := range e.Tiers {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// CapacityOrZero treats a missing capacity as zero seats.
func (t *Tier) CapacityOrZero() int {
	if t == nil || t.Capacity == nil || *t.Capacity < 0 {
		return 0
	}
	return *t.Capacity
}
