// Package domain defines the profile model and its synchronisation rules.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProfileNotFound is returned when no profile row exists for an id.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrUniqueViolation is returned by a ProfileStore when a row with the same id already exists.
	ErrUniqueViolation = errors.New("profile already exists")
	// ErrStoreUnavailable signals a retryable storage failure.
	ErrStoreUnavailable = errors.New("profile store unavailable")
	// ErrInvalidParameter is returned for out-of-range profile values.
	ErrInvalidParameter = errors.New("invalid profile parameter")
)

// SubscriptionStatus is the billing tier of a profile.
type SubscriptionStatus string

const (
	StatusFree    SubscriptionStatus = "free"
	StatusPremium SubscriptionStatus = "premium"
)

// Metadata holds the registration details supplied at sign-up. Any field may be absent.
type Metadata struct {
	FirstName *string  `json:"first_name,omitempty"`
	LastName  *string  `json:"last_name,omitempty"`
	BirthDate *string  `json:"birth_date,omitempty"`
	Weight    *float64 `json:"weight,omitempty"`
	Sex       *string  `json:"sex,omitempty"`
	Sport     *string  `json:"sport,omitempty"`
	Level     *string  `json:"level,omitempty"`
}

// Identity is the authenticated user handle issued by the identity provider.
type Identity struct {
	ID       string
	Email    string
	Metadata Metadata
}

// Profile is the persisted per-user record.
type Profile struct {
	ID                 string
	Email              string
	FirstName          string
	LastName           string
	BirthDate          *time.Time
	WeightKg           float64
	Sex                string
	Sport              string
	Level              string
	Status             SubscriptionStatus
	VMA                float64
	StravaRefreshToken *string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Degraded marks an in-memory fallback built while the store was unreachable.
	Degraded bool
}

// ProfileUpdate lists the fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	VMA                *float64
	WeightKg           *float64
	StravaRefreshToken *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.VMA == nil && u.WeightKg == nil && u.StravaRefreshToken == nil
}

// ProfileStore captures persistence operations for profiles.
type ProfileStore interface {
	Get(ctx context.Context, id string) (*Profile, error)
	Insert(ctx context.Context, profile Profile) (*Profile, error)
	Update(ctx context.Context, id string, update ProfileUpdate) (*Profile, error)
}
