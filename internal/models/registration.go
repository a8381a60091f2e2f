package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type ParticipantKind string

const (
	KindIndividual ParticipantKind = "individual"
	KindTeam       ParticipantKind = "team"
)

type AttendanceStatus string

const (
	NotAttended AttendanceStatus = "not_attended"
	Attended    AttendanceStatus = "attended"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

type Member struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Filled reports whether any field of the member entry was provided.
func (m Member) Filled() bool {
	return strings.TrimSpace(m.FullName) != "" || strings.TrimSpace(m.Email) != "" || strings.TrimSpace(m.Phone) != ""
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID                 string             `bun:"id,pk" json:"registration_id"`
	EventID            string             `bun:"event_id,notnull" json:"event_id"`
	UserID             string             `bun:"user_id,nullzero" json:"user_id,omitempty"`
	IdentityKey        string             `bun:"identity_key,notnull" json:"-"`
	Email              string             `bun:"email,notnull" json:"email"`
	Kind               ParticipantKind    `bun:"participant_kind,notnull" json:"participant_kind"`
	FullName           string             `bun:"full_name" json:"full_name"`
	Phone              string             `bun:"phone" json:"phone,omitempty"`
	Address            string             `bun:"address" json:"address,omitempty"`
	Education          string             `bun:"education" json:"education,omitempty"`
	TeamName           string             `bun:"team_name" json:"team_name,omitempty"`
	Members            []Member           `bun:"members" json:"members,omitempty"`
	TierID             string             `bun:"tier_id,notnull" json:"tier_id"`
	TierName           string             `bun:"tier_name,notnull" json:"tier_name"`
	Quantity           int                `bun:"quantity,notnull" json:"quantity"`
	UnitPrice          float64            `bun:"unit_price,notnull" json:"unit_price"`
	TotalPrice         float64            `bun:"total_price,notnull" json:"total_price"`
	AttendanceStatus   AttendanceStatus   `bun:"attendance_status,notnull" json:"attendance_status"`
	VerificationStatus VerificationStatus `bun:"verification_status,notnull" json:"verification_status"`
	Token              string             `bun:"token,notnull" json:"token"`
	CreatedAt          time.Time          `bun:"created_at,notnull" json:"created_at"`
	CheckedInAt        *time.Time         `bun:"checked_in_at" json:"checked_in_at,omitempty"`
}

// RegistrationResult is the outbound contract of a successful submission.
type RegistrationResult struct {
	RegistrationID string  `json:"registration_id"`
	Token          string  `json:"token"`
	EventID        string  `json:"event_id"`
	Email          string  `json:"email"`
	TierName       string  `json:"tier_name"`
	Quantity       int     `json:"quantity"`
	TotalPrice     float64 `json:"total_price"`
}

// TicketPayload is what a scannable ticket encodes. Check-in eligibility is
// decided from these four fields plus a registration lookup.
type TicketPayload struct {
	RegistrationID string `json:"registration_id"`
	Token          string `json:"token"`
	EventID        string `json:"event_id"`
	Email          string `json:"email"`
}

func (r *Registration) Result() RegistrationResult {
	return RegistrationResult{
		RegistrationID: r.ID,
		Token:          r.Token,
		EventID:        r.EventID,
		Email:          r.Email,
		TierName:       r.TierName,
		Quantity:       r.Quantity,
		TotalPrice:     r.TotalPrice,
	}
}

func (r *Registration) TicketPayload() TicketPayload {
	return TicketPayload{
		RegistrationID: r.ID,
		Token:          r.Token,
		EventID:        r.EventID,
		Email:          r.Email,
	}
}
