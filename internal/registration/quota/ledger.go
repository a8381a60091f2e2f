// Package quota computes remaining seats per ticket tier.
package quota

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/models"
)

var ErrQuotaExceeded = errors.New("quota exceeded")

// Counter reports the seats already taken for a tier.
type Counter interface {
	ConfirmedCount(ctx context.Context, eventID, tierID string) (int, error)
}

type Ledger struct {
	counter Counter
}

func NewLedger(counter Counter) *Ledger {
	return &Ledger{counter: counter}
}

// Remaining is max(capacity - confirmed, 0). A nil capacity counts as zero.
func Remaining(capacity *int, confirmed int) int {
	if capacity == nil {
		return 0
	}
	if left := *capacity - confirmed; left > 0 {
		return left
	}
	return 0
}

func (l *Ledger) Remaining(ctx context.Context, tier *models.Tier) (int, error) {
	if tier.Capacity == nil || *tier.Capacity <= 0 {
		return 0, nil
	}
	confirmed, err := l.counter.ConfirmedCount(ctx, tier.EventID, tier.ID)
	if err != nil {
		return 0, fmt.Errorf("count confirmed seats for tier %s: %w", tier.ID, err)
	}
	return Remaining(tier.Capacity, confirmed), nil
}

// Reserve checks that quantity seats are still free. It does not hold them;
// the store re-checks inside the insert transaction.
func (l *Ledger) Reserve(ctx context.Context, tier *models.Tier, quantity int) error {
	remaining, err := l.Remaining(ctx, tier)
	if err != nil {
		return err
	}
	if quantity > remaining {
		return fmt.Errorf("%w: tier %s has %d left, %d requested", ErrQuotaExceeded, tier.ID, remaining, quantity)
	}
	return nil
}

// Availability is the remaining seats of every tier of an event.
type Availability struct {
	TierID    string  `json:"tier_id"`
	TierName  string  `json:"tier_name"`
	Price     float64 `json:"price"`
	Capacity  int     `json:"capacity"`
	Remaining int     `json:"remaining"`
}

// Snapshot derives availability from per-tier confirmed counts.
func Snapshot(event *models.Event, confirmed map[string]int) []Availability {
	out := make([]Availability, 0, len(event.Tiers))
	for _, t := range event.Tiers {
		out = append(out, Availability{
			TierID:    t.ID,
			TierName:  t.Name,
			Price:     t.Price,
			Capacity:  t.CapacityOrZero(),
			Remaining: Remaining(t.Capacity, confirmed[t.ID]),
		})
	}
	return out
}
