package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

var ErrEventNotFound = errors.New("event not found")

// Service handles analytics operations
type Service struct {
	db  *DB
	loc *time.Location
}

func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db), loc: time.UTC}
}

// EventSummary aggregates the registrations of one event.
type EventSummary struct {
	EventID       string         `json:"event_id"`
	Registrations int            `json:"registrations"`
	Seats         int            `json:"seats"`
	Revenue       float64        `json:"revenue"`
	CheckedIn     int            `json:"checked_in"`
	ByTier        []TierSummary  `json:"by_tier"`
	Daily         []DailyMetrics `json:"daily"`
}

// TierSummary covers every tier of the event, including ones nobody picked.
type TierSummary struct {
	TierID        string  `json:"tier_id"`
	TierName      string  `json:"tier_name"`
	Capacity      *int    `json:"capacity"`
	Registrations int     `json:"registrations"`
	Seats         int     `json:"seats"`
	Revenue       float64 `json:"revenue"`
	CheckedIn     int     `json:"checked_in"`
}

// DailyMetrics contains metrics for a single day
type DailyMetrics struct {
	Date          string  `json:"date"`
	Registrations int     `json:"registrations"`
	Seats         int     `json:"seats"`
	Revenue       float64 `json:"revenue"`
}

func (s *Service) GetEventSummary(ctx context.Context, eventID string) (*EventSummary, error) {
	exists, err := s.db.EventExists(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEventNotFound
	}

	tiers, err := s.db.GetTiers(ctx, eventID)
	if err != nil {
		return nil, err
	}
	totals, err := s.db.GetTierTotals(ctx, eventID)
	if err != nil {
		return nil, err
	}
	byTier := make(map[string]TierTotalsData, len(totals))
	for _, t := range totals {
		byTier[t.TierID] = t
	}

	summary := &EventSummary{EventID: eventID, ByTier: make([]TierSummary, 0, len(tiers))}
	for _, tier := range tiers {
		t := byTier[tier.ID]
		summary.ByTier = append(summary.ByTier, TierSummary{
			TierID:        tier.ID,
			TierName:      tier.Name,
			Capacity:      tier.Capacity,
			Registrations: t.Registrations,
			Seats:         t.Seats,
			Revenue:       t.Revenue,
			CheckedIn:     t.CheckedIn,
		})
	}
	for _, t := range totals {
		summary.Registrations += t.Registrations
		summary.Seats += t.Seats
		summary.Revenue += t.Revenue
		summary.CheckedIn += t.CheckedIn
	}

	rows, err := s.db.GetRegistrationTimes(ctx, eventID)
	if err != nil {
		return nil, err
	}
	summary.Daily = s.daily(rows)
	return summary, nil
}

// daily buckets rows, which arrive ordered by creation time.
func (s *Service) daily(rows []RegistrationDayData) []DailyMetrics {
	out := []DailyMetrics{}
	for _, r := range rows {
		date := r.CreatedAt.In(s.loc).Format("2006-01-02")
		if n := len(out); n == 0 || out[n-1].Date != date {
			out = append(out, DailyMetrics{Date: date})
		}
		day := &out[len(out)-1]
		day.Registrations++
		day.Seats += r.Quantity
		day.Revenue += r.TotalPrice
	}
	return out
}
