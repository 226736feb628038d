package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Values offered by the sign-up form.
var (
	Sports = []string{"Running", "Cyclisme", "Trail", "VTT"}
	Levels = []string{"Débutant", "Intermédiaire", "Confirmé", "Expert"}
)

// Bounds applied to sign-up metadata.
const (
	MinWeightKg = 30.0
	MaxWeightKg = 200.0
)

var earliestBirthDate = time.Date(1920, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidateRegistration checks the metadata captured at sign-up. First name,
// last name and birth date are mandatory; the other fields are optional but
// must be in range when present.
func ValidateRegistration(meta Metadata, today time.Time) error {
	if blank(meta.FirstName) {
		return fmt.Errorf("%w: first_name is required", ErrInvalidParameter)
	}
	if blank(meta.LastName) {
		return fmt.Errorf("%w: last_name is required", ErrInvalidParameter)
	}
	if blank(meta.BirthDate) {
		return fmt.Errorf("%w: birth_date is required", ErrInvalidParameter)
	}
	birth, err := time.Parse(BirthDateLayout, strings.TrimSpace(*meta.BirthDate))
	if err != nil {
		return fmt.Errorf("%w: birth_date must be YYYY-MM-DD", ErrInvalidParameter)
	}
	if birth.Before(earliestBirthDate) || birth.After(today) {
		return fmt.Errorf("%w: birth_date out of range", ErrInvalidParameter)
	}
	if meta.Weight != nil && (*meta.Weight < MinWeightKg || *meta.Weight > MaxWeightKg) {
		return fmt.Errorf("%w: weight must be between %.0f and %.0f kg", ErrInvalidParameter, MinWeightKg, MaxWeightKg)
	}
	if meta.Sport != nil && !slices.Contains(Sports, *meta.Sport) {
		return fmt.Errorf("%w: unknown sport %q", ErrInvalidParameter, *meta.Sport)
	}
	if meta.Level != nil && !slices.Contains(Levels, *meta.Level) {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidParameter, *meta.Level)
	}
	return nil
}

func blank(value *string) bool {
	return value == nil || strings.TrimSpace(*value) == ""
}
