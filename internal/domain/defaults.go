package domain

import (
	"strings"
	"time"
)

// BirthDateLayout is the format of the birth date captured at sign-up.
const BirthDateLayout = "2006-01-02"

// Defaults are substituted for registration metadata missing at first sign-in.
type Defaults struct {
	FirstName string
	LastName  string
	Level     string
	Sport     string
	WeightKg  float64
	VMA       float64
	Status    SubscriptionStatus
}

// StandardDefaults returns the values used when no override is configured.
func StandardDefaults() Defaults {
	return Defaults{
		FirstName: "Champion",
		LastName:  "",
		Level:     "Débutant",
		Sport:     "Running",
		WeightKg:  75.0,
		VMA:       16.0,
		Status:    StatusFree,
	}
}

// NewProfile builds the first profile row for identity, filling every absent
// metadata field from d.
func NewProfile(identity Identity, d Defaults, now time.Time) Profile {
	meta := identity.Metadata
	profile := Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		FirstName: stringOr(meta.FirstName, d.FirstName),
		LastName:  stringOr(meta.LastName, d.LastName),
		Sex:       stringOr(meta.Sex, ""),
		Sport:     stringOr(meta.Sport, d.Sport),
		Level:     stringOr(meta.Level, d.Level),
		WeightKg:  d.WeightKg,
		VMA:       d.VMA,
		Status:    d.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if meta.Weight != nil && *meta.Weight > 0 {
		profile.WeightKg = *meta.Weight
	}
	if meta.BirthDate != nil {
		if parsed, err := time.Parse(BirthDateLayout, strings.TrimSpace(*meta.BirthDate)); err == nil {
			profile.BirthDate = &parsed
		}
	}
	return profile
}

func stringOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	if trimmed := strings.TrimSpace(*value); trimmed != "" {
		return trimmed
	}
	return fallback
}
