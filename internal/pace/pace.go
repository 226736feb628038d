// Package pace derives training paces from maximal aerobic speed (VMA).
package pace

import (
	"errors"
	"fmt"
	"math"
)

// Intensity fractions of VMA for each training zone.
const (
	EnduranceFraction = 0.70
	ThresholdFraction = 0.85
	MaximalFraction   = 1.00
)

// Placeholder is rendered when a pace cannot be computed.
const Placeholder = "--:--"

// ErrInvalidParameter is returned for a non-positive or non-finite VMA.
var ErrInvalidParameter = errors.New("vma must be a positive number")

// Paces holds the three training paces in seconds per kilometre.
type Paces struct {
	VMA       float64
	Endurance float64
	Threshold float64
	Maximal   float64
}

// Compute returns the endurance, threshold and maximal paces for vma (km/h).
func Compute(vma float64) (Paces, error) {
	if !valid(vma) {
		return Paces{}, fmt.Errorf("%w: got %v", ErrInvalidParameter, vma)
	}
	return Paces{
		VMA:       vma,
		Endurance: SecondsPerKm(vma, EnduranceFraction),
		Threshold: SecondsPerKm(vma, ThresholdFraction),
		Maximal:   SecondsPerKm(vma, MaximalFraction),
	}, nil
}

// SecondsPerKm is the time needed to cover one kilometre at fraction of vma.
// Callers must pass a positive vma and fraction.
func SecondsPerKm(vma, fraction float64) float64 {
	return 3600 / (vma * fraction)
}

// Format renders seconds as m:ss, truncating fractional seconds. Durations
// too long for an int64 render as the placeholder.
func Format(seconds float64) string {
	if seconds <= 0 || seconds >= math.MaxInt64 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return Placeholder
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Formatted is the display form of Paces.
type Formatted struct {
	Endurance string `json:"endurance"`
	Threshold string `json:"threshold"`
	Maximal   string `json:"maximal"`
}

// Formatted renders every pace with Format.
func (p Paces) Formatted() Formatted {
	return Formatted{
		Endurance: Format(p.Endurance),
		Threshold: Format(p.Threshold),
		Maximal:   Format(p.Maximal),
	}
}

// PlaceholderFormatted is shown when the VMA is unusable.
func PlaceholderFormatted() Formatted {
	return Formatted{Endurance: Placeholder, Threshold: Placeholder, Maximal: Placeholder}
}

func valid(vma float64) bool {
	return vma > 0 && !math.IsInf(vma, 0) && !math.IsNaN(vma)
}
