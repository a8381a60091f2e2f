// Package registration issues event registrations and their attendance
// tokens.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-registration/internal/catalog"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/registration/duplicate"
	"ms-registration/internal/registration/quota"
	"ms-registration/internal/registration/validation"
	"ms-registration/internal/utils"
)

// RegistrationStore is the persistence the issuer needs.
type RegistrationStore interface {
	duplicate.Finder
	quota.Counter
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	ConfirmedCounts(ctx context.Context, eventID string) (map[string]int, error)
}

type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

type TokenFunc func() (string, error)

type Service struct {
	Store    RegistrationStore
	Catalog  EventReader
	Guard    *duplicate.Guard
	Ledger   *quota.Ledger
	Tokens   TokenFunc
	Logger   *logger.Logger
	Attempts int
	now      func() time.Time
}

func NewService(store RegistrationStore, events EventReader, tokenLength, attempts int, log *logger.Logger) *Service {
	if attempts <= 0 {
		attempts = 10
	}
	return &Service{
		Store:    store,
		Catalog:  events,
		Guard:    duplicate.NewGuard(store),
		Ledger:   quota.NewLedger(store),
		Tokens:   func() (string, error) { return utils.GenerateToken(tokenLength) },
		Logger:   log,
		Attempts: attempts,
		now:      time.Now,
	}
}

// Submit runs validate, duplicate pre-check, quota pre-check and the guarded
// insert. The pre-checks only give early answers; the insert is authoritative.
// The caller must have passed the verification gate already.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (*models.Registration, error) {
	if fields := validation.Validate(sub); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}

	event, err := s.Catalog.GetEvent(ctx, sub.EventID)
	if errors.Is(err, catalog.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load event", Err: err}
	}
	tier := event.Tier(sub.TierID)
	if tier == nil {
		return nil, &ValidationError{Fields: map[string]string{"tier_id": validation.ReasonUnknownTier}}
	}

	identity := sub.ResolvedIdentity()
	if err := s.rejectExisting(ctx, event.ID, identity); err != nil {
		return nil, err
	}

	if err := s.Ledger.Reserve(ctx, tier, sub.Quantity); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.Logger.Info("QUOTA", fmt.Sprintf("Tier %s/%s cannot take %d more", event.ID, tier.ID, sub.Quantity))
			return nil, ErrQuotaExceeded
		}
		return nil, &PersistenceError{Op: "count seats", Err: err}
	}

	reg := s.build(event, tier, identity, sub)
	for attempt := 1; ; attempt++ {
		token, err := s.Tokens()
		if err != nil {
			return nil, &PersistenceError{Op: "generate token", Err: err}
		}
		reg.Token = token

		err = s.Store.CreateRegistration(ctx, reg)
		switch {
		case err == nil:
			s.Logger.LogRegistration("CREATED", reg.ID, fmt.Sprintf("event=%s tier=%s qty=%d", reg.EventID, reg.TierID, reg.Quantity))
			return reg, nil
		case errors.Is(err, db.ErrTokenTaken):
			if attempt >= s.Attempts {
				return nil, &PersistenceError{Op: "allocate token", Err: err}
			}
			s.Logger.Debug("REGISTRATION", fmt.Sprintf("Token collision on event %s, retrying (%d)", reg.EventID, attempt))
		case errors.Is(err, db.ErrIdentityTaken):
			return nil, s.duplicateAfterRace(ctx, event.ID, identity, err)
		case errors.Is(err, db.ErrTierFull):
			s.Logger.Info("QUOTA", fmt.Sprintf("Tier %s/%s filled up before insert", event.ID, tier.ID))
			return nil, ErrQuotaExceeded
		case errors.Is(err, db.ErrTierNotFound):
			return nil, &ValidationError{Fields: map[string]string{"tier_id": validation.ReasonUnknownTier}}
		default:
			s.Logger.Error("REGISTRATION", fmt.Sprintf("Insert failed for event %s: %v", reg.EventID, err))
			return nil, &PersistenceError{Op: "create registration", Err: err}
		}
	}
}

func (s *Service) rejectExisting(ctx context.Context, eventID string, identity models.Identity) error {
	existing, err := s.Guard.Existing(ctx, eventID, identity)
	if err != nil {
		return &PersistenceError{Op: "check duplicate", Err: err}
	}
	if existing != nil {
		return &DuplicateRegistrationError{RegistrationID: existing.ID, Token: existing.Token}
	}
	return nil
}

// duplicateAfterRace looks up the row that won the unique index so the
// rejection still carries its token.
func (s *Service) duplicateAfterRace(ctx context.Context, eventID string, identity models.Identity, cause error) error {
	existing, err := s.Guard.Existing(ctx, eventID, identity)
	if err != nil || existing == nil {
		s.Logger.Warn("REGISTRATION", fmt.Sprintf("Unique violation on event %s without a visible winner: %v", eventID, cause))
		return &DuplicateRegistrationError{}
	}
	return &DuplicateRegistrationError{RegistrationID: existing.ID, Token: existing.Token}
}

func (s *Service) build(event *models.Event, tier *models.Tier, identity models.Identity, sub models.Submission) *models.Registration {
	f := sub.FormFields
	reg := &models.Registration{
		ID:                 uuid.NewString(),
		EventID:            event.ID,
		UserID:             identity.UserID,
		IdentityKey:        identity.Key(),
		Email:              identity.Email,
		Kind:               sub.ParticipantKind,
		TierID:             tier.ID,
		TierName:           tier.Name,
		Quantity:           sub.Quantity,
		UnitPrice:          tier.Price,
		TotalPrice:         tier.Price * float64(sub.Quantity),
		AttendanceStatus:   models.NotAttended,
		VerificationStatus: models.VerificationPending,
		CreatedAt:          s.clock().UTC(),
	}

	switch sub.ParticipantKind {
	case models.KindTeam:
		reg.TeamName = strings.TrimSpace(f.TeamName)
		reg.FullName = strings.TrimSpace(f.LeaderName)
		reg.Phone = strings.TrimSpace(f.LeaderPhone)
		for _, m := range f.Members {
			if m.Filled() {
				reg.Members = append(reg.Members, models.Member{
					FullName: strings.TrimSpace(m.FullName),
					Email:    models.NormalizeEmail(m.Email),
					Phone:    strings.TrimSpace(m.Phone),
				})
			}
		}
	default:
		reg.FullName = strings.TrimSpace(f.FullName)
		reg.Phone = strings.TrimSpace(f.Phone)
		reg.Address = strings.TrimSpace(f.Address)
		reg.Education = strings.ToLower(strings.TrimSpace(f.Education))
	}
	return reg
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Lookup returns the registration an identity already holds for an event,
// so a lost token can be recovered without registering again.
func (s *Service) Lookup(ctx context.Context, eventID string, identity models.Identity) (*models.Registration, error) {
	reg, err := s.Guard.Existing(ctx, eventID, identity)
	if err != nil {
		return nil, &PersistenceError{Op: "lookup registration", Err: err}
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	return reg, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.Store.GetRegistration(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get registration", Err: err}
	}
	return reg, nil
}

// Availability reports remaining seats for every tier of an event.
func (s *Service) Availability(ctx context.Context, eventID string) ([]quota.Availability, error) {
	event, err := s.Catalog.GetEvent(ctx, eventID)
	if errors.Is(err, catalog.ErrEventNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load event", Err: err}
	}
	counts, err := s.Store.ConfirmedCounts(ctx, eventID)
	if err != nil {
		return nil, &PersistenceError{Op: "count seats", Err: err}
	}
	return quota.Snapshot(event, counts), nil
}
