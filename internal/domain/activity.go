package domain

import "time"

// Activity is a workout summary read from the external activity provider.
type Activity struct {
	ID            int64
	Name          string
	Type          string
	Distance      float64 // metres
	MovingTime    int     // seconds
	ElevationGain float64 // metres, zero when the provider omits it
	StartDate     time.Time
}

// Sport types reported by the activity provider.
const (
	SportRun               = "Run"
	SportTrailRun          = "TrailRun"
	SportVirtualRun        = "VirtualRun"
	SportRide              = "Ride"
	SportMountainBikeRide  = "MountainBikeRide"
	SportGravelRide        = "GravelRide"
	SportEBikeRide         = "EBikeRide"
	SportEMountainBikeRide = "EMountainBikeRide"
	SportVirtualRide       = "VirtualRide"
)

// IsRun reports whether the activity is a running variant.
func (a Activity) IsRun() bool {
	switch a.Type {
	case SportRun, SportTrailRun, SportVirtualRun:
		return true
	default:
		return false
	}
}

// IsRide reports whether the activity is a cycling variant.
func (a Activity) IsRide() bool {
	switch a.Type {
	case SportRide, SportMountainBikeRide, SportGravelRide, SportEBikeRide, SportEMountainBikeRide, SportVirtualRide:
		return true
	default:
		return false
	}
}
