// Package duplicate answers whether an identity already registered for an event.
package duplicate

import (
	"context"
	"fmt"

	"ms-registration/internal/models"
)

// Finder looks up a registration by event and user id or email. It returns
// nil, nil when there is none.
type Finder interface {
	FindExisting(ctx context.Context, eventID, userID, email string) (*models.Registration, error)
}

// Guard is the fast pre-check. The unique indexes on registrations remain
// the final word under concurrency.
type Guard struct {
	finder Finder
}

func NewGuard(finder Finder) *Guard {
	return &Guard{finder: finder}
}

func (g *Guard) Existing(ctx context.Context, eventID string, identity models.Identity) (*models.Registration, error) {
	email := models.NormalizeEmail(identity.Email)
	if identity.UserID == "" && email == "" {
		return nil, nil
	}
	reg, err := g.finder.FindExisting(ctx, eventID, identity.UserID, email)
	if err != nil {
		return nil, fmt.Errorf("find existing registration for event %s: %w", eventID, err)
	}
	return reg, nil
}

func (g *Guard) HasExisting(ctx context.Context, eventID string, identity models.Identity) (bool, error) {
	reg, err := g.Existing(ctx, eventID, identity)
	return reg != nil, err
}
