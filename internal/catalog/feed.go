package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// Feed is the catalog file handed over by the admin side:
//
//	events:
//	  - id: E7
//	    title: DevFest
//	    start: 2025-09-01T09:00:00Z
//	    tiers:
//	      - {id: reg, name: Regular, price: 50000, capacity: 200}
type Feed struct {
	Events []*models.Event `yaml:"events"`
}

type ImportResult struct {
	Imported int               `json:"imported"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

// Check reports why an event record cannot enter the catalog, or nil.
func Check(e *models.Event) error {
	if e == nil {
		return errors.New("empty record")
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.StartTime.IsZero() {
		return errors.New("missing start time")
	}
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return errors.New("end time is before start time")
	}
	seen := make(map[string]bool, len(e.Tiers))
	for _, t := range e.Tiers {
		switch {
		case t == nil || t.ID == "":
			return errors.New("tier without id")
		case seen[t.ID]:
			return fmt.Errorf("tier %s listed twice", t.ID)
		case t.Price < 0:
			return fmt.Errorf("tier %s has a negative price", t.ID)
		case t.Capacity != nil && *t.Capacity < 0:
			return fmt.Errorf("tier %s has a negative capacity", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Import reads a YAML feed and upserts every valid event. Invalid records
// are skipped and reported in the result.
func (s *Store) Import(ctx context.Context, r io.Reader, log *logger.Logger) (*ImportResult, error) {
	var feed Feed
	if err := yaml.NewDecoder(r).Decode(&feed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog feed: %w", err)
	}

	result := &ImportResult{Rejected: map[string]string{}}
	for i, event := range feed.Events {
		if err := Check(event); err != nil {
			key := fmt.Sprintf("#%d", i)
			if event != nil && event.ID != "" {
				key = event.ID
			}
			result.Rejected[key] = err.Error()
			log.Warn("CATALOG", fmt.Sprintf("Rejected event %s: %v", key, err))
			continue
		}
		if err := s.UpsertEvent(ctx, event); err != nil {
			return result, err
		}
		result.Imported++
	}

	log.Info("CATALOG", fmt.Sprintf("Imported %d events, rejected %d", result.Imported, len(result.Rejected)))
	return result, nil
}
