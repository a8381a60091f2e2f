package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/tickets/db"
	"ms-registration/internal/tickets/qr"
)

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrInvalidTicket    = errors.New("ticket does not match registration")
	ErrAlreadyCheckedIn = db.ErrAlreadyCheckedIn
)

type TicketDBLayer interface {
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	MarkAttended(ctx context.Context, id string, at time.Time) error
	GetAttendanceCount(ctx context.Context, eventID string) (db.AttendanceCount, error)
}

type TicketService struct {
	DB     TicketDBLayer
	QR     *qr.QRGenerator
	Logger *logger.Logger
	now    func() time.Time
}

func NewTicketService(store TicketDBLayer, gen *qr.QRGenerator, log *logger.Logger) *TicketService {
	return &TicketService{DB: store, QR: gen, Logger: log, now: time.Now}
}

func (s *TicketService) Get(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.DB.GetRegistration(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	return reg, err
}

// Render returns the ticket QR PNG for a registration.
func (s *TicketService) Render(reg *models.Registration) ([]byte, error) {
	png, err := s.QR.GenerateEncryptedQR(reg.TicketPayload())
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR: %w", err)
	}
	return png, nil
}

func (s *TicketService) Seal(reg *models.Registration) (string, error) {
	return s.QR.Seal(reg.TicketPayload())
}

// Eligibility decides from the four payload fields plus one lookup whether
// the ticket may enter. It does not change anything.
func (s *TicketService) Eligibility(ctx context.Context, p models.TicketPayload) (*models.Registration, error) {
	reg, err := s.DB.GetRegistration(ctx, p.RegistrationID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket %s lookup: %w", p.RegistrationID, err)
	}

	if reg.Token != p.Token || reg.EventID != p.EventID || reg.Email != models.NormalizeEmail(p.Email) {
		s.Logger.LogSecurity("CHECKIN", fmt.Sprintf("Payload mismatch for registration %s", p.RegistrationID))
		return nil, ErrInvalidTicket
	}
	if reg.AttendanceStatus == models.Attended {
		return reg, ErrAlreadyCheckedIn
	}
	return reg, nil
}

// CheckIn marks the registration behind a valid payload as attended.
func (s *TicketService) CheckIn(ctx context.Context, p models.TicketPayload) (*models.Registration, error) {
	reg, err := s.Eligibility(ctx, p)
	if err != nil {
		return reg, err
	}

	at := s.now().UTC()
	if err := s.DB.MarkAttended(ctx, reg.ID, at); err != nil {
		if errors.Is(err, db.ErrAlreadyCheckedIn) {
			return reg, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("failed to check in %s: %w", reg.ID, err)
	}

	reg.AttendanceStatus = models.Attended
	reg.VerificationStatus = models.VerificationVerified
	reg.CheckedInAt = &at
	s.Logger.LogRegistration("CHECKED_IN", reg.ID, "event="+reg.EventID)
	return reg, nil
}

// CheckInSealed opens a scanned QR string and checks it in.
func (s *TicketService) CheckInSealed(ctx context.Context, sealed string) (*models.Registration, error) {
	p, err := s.QR.Open(sealed)
	if err != nil {
		return nil, ErrInvalidTicket
	}
	return s.CheckIn(ctx, p)
}

func (s *TicketService) Attendance(ctx context.Context, eventID string) (db.AttendanceCount, error) {
	return s.DB.GetAttendanceCount(ctx, eventID)
}
