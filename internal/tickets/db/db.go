package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

var (
	ErrNotFound         = errors.New("registration not found")
	ErrAlreadyCheckedIn = errors.New("registration already checked in")
)

// DB is the check-in side of the registrations table. It only ever flips
// attendance; registrations are created elsewhere.
type DB struct {
	Bun *bun.DB
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

// MarkAttended flips a registration to attended exactly once. The status
// condition in the UPDATE makes concurrent scans of one ticket race safely.
func (d *DB) MarkAttended(ctx context.Context, id string, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("attendance_status = ?", models.Attended).
		Set("verification_status = ?", models.VerificationVerified).
		Set("checked_in_at = ?", at).
		Where("id = ?", id).
		Where("attendance_status = ?", models.NotAttended).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	exists, err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyCheckedIn
}
