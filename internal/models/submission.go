package models

import "strings"

// Identity is the de-duplication key of a registrant: the user id when the
// request is authenticated, otherwise the submitted email.
type Identity struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email"`
}

// Key is stored in registrations.identity_key and carries the unique index.
func (i Identity) Key() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	return "email:" + NormalizeEmail(i.Email)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type FormFields struct {
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Education string `json:"education,omitempty"`

	TeamName    string   `json:"team_name,omitempty"`
	LeaderName  string   `json:"leader_name,omitempty"`
	LeaderEmail string   `json:"leader_email,omitempty"`
	LeaderPhone string   `json:"leader_phone,omitempty"`
	Members     []Member `json:"members,omitempty"`
}

// Submission is one registration attempt. EventID comes from the route and
// Identity.UserID from the authenticated request, never from the body alone.
type Submission struct {
	EventID          string          `json:"-"`
	Identity         Identity        `json:"identity"`
	ParticipantKind  ParticipantKind `json:"participant_kind"`
	FormFields       FormFields      `json:"form_fields"`
	TierID           string          `json:"tier_id"`
	Quantity         int             `json:"quantity"`
	VerificationPass string          `json:"verification_pass,omitempty"`
}

// ContactEmail falls back to the form's email when the identity carries none.
func (s Submission) ContactEmail() string {
	if e := NormalizeEmail(s.Identity.Email); e != "" {
		return e
	}
	if s.ParticipantKind == KindTeam {
		return NormalizeEmail(s.FormFields.LeaderEmail)
	}
	return NormalizeEmail(s.FormFields.Email)
}

// ResolvedIdentity is the identity with its email filled from the form if needed.
func (s Submission) ResolvedIdentity() Identity {
	return Identity{UserID: strings.TrimSpace(s.Identity.UserID), Email: s.ContactEmail()}
}
