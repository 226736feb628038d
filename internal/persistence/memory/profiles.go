// Package memory provides in-process stores for local development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
)

// ProfileStore keeps profiles in a map keyed by id. The map key plays the role
// of the primary key constraint.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	writes   int
	now      func() time.Time
}

// NewProfileStore constructs an empty ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]domain.Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the profile for id, or nil when none exists.
func (s *ProfileStore) Get(_ context.Context, id string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Insert stores profile, failing with domain.ErrUniqueViolation if the id is taken.
func (s *ProfileStore) Insert(_ context.Context, profile domain.Profile) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.ID]; exists {
		return nil, domain.ErrUniqueViolation
	}
	profile.Degraded = false
	s.profiles[profile.ID] = profile
	s.writes++
	return &profile, nil
}

// Update applies the mutable fields of update to the stored row.
func (s *ProfileStore) Update(_ context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	if update.VMA != nil {
		p.VMA = *update.VMA
	}
	if update.WeightKg != nil {
		p.WeightKg = *update.WeightKg
	}
	if update.StravaRefreshToken != nil {
		if *update.StravaRefreshToken == "" {
			p.StravaRefreshToken = nil
		} else {
			token := *update.StravaRefreshToken
			p.StravaRefreshToken = &token
		}
	}
	p.UpdatedAt = s.now()
	s.profiles[id] = p
	s.writes++
	return &p, nil
}

// Len returns the number of stored profiles.
func (s *ProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Writes returns the number of successful inserts and updates.
func (s *ProfileStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
