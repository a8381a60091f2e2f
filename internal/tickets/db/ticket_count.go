package db

import (
	"context"

	"ms-registration/internal/models"
)

// AttendanceCount is seats registered versus seats checked in for an event.
type AttendanceCount struct {
	Registrations int `json:"registrations" bun:"registrations"`
	Seats         int `json:"seats" bun:"seats"`
	CheckedIn     int `json:"checked_in" bun:"checked_in"`
}

func (d *DB) GetAttendanceCount(ctx context.Context, eventID string) (AttendanceCount, error) {
	var count AttendanceCount
	err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		ColumnExpr("COUNT(*) AS registrations").
		ColumnExpr("COALESCE(SUM(quantity), 0) AS seats").
		ColumnExpr("COALESCE(SUM(CASE WHEN attendance_status = ? THEN 1 ELSE 0 END), 0) AS checked_in", models.Attended).
		Where("event_id = ?", eventID).
		Scan(ctx, &count)
	return count, err
}

// GetTotalCheckedIn counts checked-in registrations across all events.
func (d *DB) GetTotalCheckedIn(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("attendance_status = ?", models.Attended).
		Count(ctx)
}
