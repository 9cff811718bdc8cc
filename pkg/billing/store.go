package billing

import (
	"context"

	"github.com/google/uuid"
)

// ProfileStore defines the interface for billing profile persistence.
// Each user has exactly one profile, so UserID serves as the primary key.
//
// Save is a last-writer-wins upsert with no optimistic concurrency check:
// overlapping webhook deliveries for the same customer may transiently store
// a stale snapshot, and the reconciler's idempotent recomputation restores
// consistency on the next event.
type ProfileStore interface {
	// Get retrieves a profile by user ID.
	// Returns ErrProfileNotFound if no profile exists.
	Get(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// GetByCustomerID retrieves a profile by the provider's customer ID.
	// Used by the webhook reconciler, which has no end-user session.
	// Returns ErrProfileNotFound if no profile exists.
	GetByCustomerID(ctx context.Context, customerID string) (*Profile, error)

	// Save creates or updates a profile keyed by UserID.
	Save(ctx context.Context, profile *Profile) error
}
