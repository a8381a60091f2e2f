package registration

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ms-registration/internal/registration/gate"
	"ms-registration/internal/registration/quota"
)

var (
	ErrQuotaExceeded        = quota.ErrQuotaExceeded
	ErrVerificationFailed   = gate.ErrVerificationFailed
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
)

// ValidationError carries a field name to reason map. It is returned before
// anything is written.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// DuplicateRegistrationError is returned when the identity already holds a
// registration for the event. Token lets the caller recover the ticket.
type DuplicateRegistrationError struct {
	RegistrationID string
	Token          string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("already registered (registration %s)", e.RegistrationID)
}

// PersistenceError hides storage failures behind the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s", e.Op)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
