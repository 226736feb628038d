package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/observability"
)

// Option configures optional behaviour for the Synchronizer.
type Option func(*Synchronizer)

// WithLogger overrides the logger used to report degraded reads and conflicts.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithDefaults overrides the values substituted for missing metadata.
func WithDefaults(d Defaults) Option {
	return func(s *Synchronizer) {
		s.defaults = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// Synchronizer guarantees a single profile row per identity.
type Synchronizer struct {
	store    ProfileStore
	defaults Defaults
	logger   *slog.Logger
	now      func() time.Time
}

// NewSynchronizer constructs a Synchronizer backed by store.
func NewSynchronizer(store ProfileStore, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		defaults: StandardDefaults(),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the configured metadata defaults.
func (s *Synchronizer) Defaults() Defaults {
	return s.defaults
}

// EnsureProfile returns the stored profile for identity, creating it on first
// access. An existing row is returned without any write. A concurrent creation
// detected through the store's unique constraint is resolved by re-reading.
// When the store cannot be read, an in-memory default profile marked Degraded
// is returned instead of an error.
func (s *Synchronizer) EnsureProfile(ctx context.Context, identity Identity) (*Profile, error) {
	if identity.ID == "" {
		return nil, fmt.Errorf("%w: identity id is required", ErrInvalidParameter)
	}

	existing, err := s.store.Get(ctx, identity.ID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("profile read failed, serving defaults", "user_id", identity.ID, "error", err)
		observability.RecordProfileDegraded()
		observability.CaptureError(err, map[string]string{"operation": "profile.get"})
		fallback := NewProfile(identity, s.defaults, s.now())
		fallback.Degraded = true
		return &fallback, nil
	}
	if existing != nil {
		return existing, nil
	}

	profile := NewProfile(identity, s.defaults, s.now())
	created, err := s.store.Insert(ctx, profile)
	switch {
	case err == nil:
		observability.RecordProfileCreated(created.CreatedAt)
		s.logger.Info("profile created", "user_id", identity.ID)
		return created, nil
	case errors.Is(err, ErrUniqueViolation):
		observability.RecordProfileConflict()
		s.logger.Info("profile created concurrently, re-reading", "user_id", identity.ID)
		return s.reread(ctx, identity.ID)
	default:
		observability.CaptureError(err, map[string]string{"operation": "profile.insert"})
		return nil, fmt.Errorf("%w: insert profile: %v", ErrStoreUnavailable, err)
	}
}

func (s *Synchronizer) reread(ctx context.Context, id string) (*Profile, error) {
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: re-read profile: %v", ErrStoreUnavailable, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: profile %s missing after conflict", ErrStoreUnavailable, id)
	}
	return stored, nil
}

// UpdateProfile applies a partial update of the mutable fields. An empty
// update returns the current row.
func (s *Synchronizer) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: profile id is required", ErrInvalidParameter)
	}
	if update.VMA != nil && !positive(*update.VMA) {
		return nil, fmt.Errorf("%w: vma must be > 0", ErrInvalidParameter)
	}
	if update.WeightKg != nil && !positive(*update.WeightKg) {
		return nil, fmt.Errorf("%w: weight must be > 0", ErrInvalidParameter)
	}

	if update.Empty() {
		current, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if current == nil {
			return nil, ErrProfileNotFound
		}
		return current, nil
	}

	updated, err := s.store.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		observability.CaptureError(err, map[string]string{"operation": "profile.update"})
		return nil, fmt.Errorf("%w: update profile: %v", ErrStoreUnavailable, err)
	}
	observability.RecordProfileWrite(updated.UpdatedAt)
	return updated, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
