package billing

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryProfileStore is an in-memory ProfileStore for tests and examples.
// Safe for concurrent use.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*Profile
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		profiles: make(map[uuid.UUID]*Profile),
	}
}

func (s *MemoryProfileStore) Get(_ context.Context, userID uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return copyProfile(profile), nil
}

func (s *MemoryProfileStore) GetByCustomerID(_ context.Context, customerID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if customerID != "" {
		for _, profile := range s.profiles {
			if profile.CustomerID == customerID {
				return copyProfile(profile), nil
			}
		}
	}
	return nil, ErrProfileNotFound
}

func (s *MemoryProfileStore) Save(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = copyProfile(profile)
	return nil
}

// copyProfile isolates stored state from caller mutation.
func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.Features = slices.Clone(p.Features)
	if p.CurrentPeriodEnd != nil {
		t := *p.CurrentPeriodEnd
		cp.CurrentPeriodEnd = &t
	}
	if p.TrialEndsAt != nil {
		t := *p.TrialEndsAt
		cp.TrialEndsAt = &t
	}
	return &cp
}
