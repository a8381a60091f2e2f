package analytics

import (
	"context"
	"strings"

	"ms-registration/internal/models"
)

// RegistrationSortField defines the valid fields for sorting registrations
type RegistrationSortField string

const (
	SortByCreatedAt  RegistrationSortField = "created_at"
	SortByTotalPrice RegistrationSortField = "total_price"
	SortByFullName   RegistrationSortField = "full_name"
)

// RegistrationListOptions filters, sorts and pages the organizer listing.
type RegistrationListOptions struct {
	TierID     string
	Attendance models.AttendanceStatus
	SortBy     string
	SortDesc   bool
	Limit      int
	Offset     int
}

// RegistrationRow is what the organizer sees; the token is left out.
type RegistrationRow struct {
	RegistrationID   string                  `json:"registration_id"`
	FullName         string                  `json:"full_name"`
	Email            string                  `json:"email"`
	Kind             models.ParticipantKind  `json:"participant_kind"`
	TeamName         string                  `json:"team_name,omitempty"`
	TierID           string                  `json:"tier_id"`
	TierName         string                  `json:"tier_name"`
	Quantity         int                     `json:"quantity"`
	TotalPrice       float64                 `json:"total_price"`
	AttendanceStatus models.AttendanceStatus `json:"attendance_status"`
	CreatedAt        string                  `json:"created_at"`
}

const maxListLimit = 500

func (s *Service) ListRegistrations(ctx context.Context, eventID string, options RegistrationListOptions) ([]RegistrationRow, error) {
	exists, err := s.db.EventExists(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEventNotFound
	}

	q := s.db.bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID)

	if options.TierID != "" {
		q = q.Where("tier_id = ?", options.TierID)
	}
	if options.Attendance != "" {
		q = q.Where("attendance_status = ?", options.Attendance)
	}

	direction := "ASC"
	if options.SortDesc {
		direction = "DESC"
	}
	switch RegistrationSortField(strings.ToLower(options.SortBy)) {
	case SortByTotalPrice:
		q = q.Order("total_price " + direction)
	case SortByFullName:
		q = q.Order("full_name " + direction)
	default:
		q = q.Order("created_at " + direction)
	}
	q = q.Order("id ASC")

	limit := options.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q = q.Limit(limit)
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	var regs []models.Registration
	if err := q.Scan(ctx, &regs); err != nil {
		return nil, err
	}

	rows := make([]RegistrationRow, len(regs))
	for i, reg := range regs {
		rows[i] = RegistrationRow{
			RegistrationID:   reg.ID,
			FullName:         reg.FullName,
			Email:            reg.Email,
			Kind:             reg.Kind,
			TeamName:         reg.TeamName,
			TierID:           reg.TierID,
			TierName:         reg.TierName,
			Quantity:         reg.Quantity,
			TotalPrice:       reg.TotalPrice,
			AttendanceStatus: reg.AttendanceStatus,
			CreatedAt:        reg.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return rows, nil
}
