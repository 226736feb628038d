// Package records extracts personal records and summary statistics from activity history.
package records

import (
	"fmt"
	"math"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/pace"
)

// Band is the accepted distance range, in metres, for a race distance.
type Band struct {
	Name string
	Min  float64
	Max  float64
}

// Canonical race distances with their tolerance bands.
var (
	Band5K           = Band{Name: "5k", Min: 5000, Max: 5500}
	Band10K          = Band{Name: "10k", Min: 10000, Max: 10800}
	BandHalfMarathon = Band{Name: "half_marathon", Min: 21097, Max: 22000}
	BandMarathon     = Band{Name: "marathon", Min: 42195, Max: 43500}
)

// DefaultTopSpeedMinDistance excludes short rides from the top speed record.
const DefaultTopSpeedMinDistance = 10000.0

// DefaultBands returns the race distances tracked on the dashboard.
func DefaultBands() []Band {
	return []Band{Band5K, Band10K, BandHalfMarathon, BandMarathon}
}

// RaceRecord is the best estimated time over a race distance.
type RaceRecord struct {
	Band       Band
	Known      bool
	Seconds    float64
	Display    string
	ActivityID int64
	StartDate  time.Time
}

// BestRacePace picks the run with the fastest pace per metre within band and
// projects it onto band.Min. An empty selection yields an unknown record.
func BestRacePace(activities []domain.Activity, band Band) RaceRecord {
	record := RaceRecord{Band: band, Display: pace.Placeholder}

	var best *domain.Activity
	bestRatio := math.Inf(1)
	for i := range activities {
		a := &activities[i]
		if !a.IsRun() || a.Distance < band.Min || a.Distance > band.Max || a.MovingTime <= 0 {
			continue
		}
		ratio := float64(a.MovingTime) / a.Distance
		if ratio < bestRatio {
			bestRatio = ratio
			best = a
		}
	}
	if best == nil {
		return record
	}

	record.Known = true
	record.Seconds = bestRatio * band.Min
	record.Display = pace.Format(record.Seconds)
	record.ActivityID = best.ID
	record.StartDate = best.StartDate
	return record
}

// RideRecords holds the cycling records. Each field is computed on its own.
type RideRecords struct {
	LongestDistance        float64 // metres
	LongestDuration        int     // seconds
	LongestDurationDisplay string
	MaxElevationGain       float64 // metres
	TopSpeed               float64 // km/h, zero when unknown
}

// Rides computes cycling records. Top speed only considers rides longer than
// minSpeedDistance metres.
func Rides(activities []domain.Activity, minSpeedDistance float64) RideRecords {
	var out RideRecords
	for _, a := range activities {
		if !a.IsRide() {
			continue
		}
		if a.Distance > out.LongestDistance {
			out.LongestDistance = a.Distance
		}
		if a.MovingTime > out.LongestDuration {
			out.LongestDuration = a.MovingTime
		}
		if a.ElevationGain > out.MaxElevationGain {
			out.MaxElevationGain = a.ElevationGain
		}
		if a.Distance > minSpeedDistance && a.MovingTime > 0 {
			speed := SpeedKmh(a.Distance, a.MovingTime)
			if speed > out.TopSpeed {
				out.TopSpeed = speed
			}
		}
	}
	out.LongestDurationDisplay = FormatDuration(out.LongestDuration)
	return out
}

// SpeedKmh converts metres over seconds into km/h.
func SpeedKmh(distance float64, movingTime int) float64 {
	if movingTime <= 0 {
		return 0
	}
	return distance / float64(movingTime) * 3.6
}

// FormatDuration renders seconds as "Hh MMm".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dh %02dm", seconds/3600, (seconds%3600)/60)
}

// Options tunes record extraction.
type Options struct {
	Bands               []Band
	TopSpeedMinDistance float64
}

// DefaultOptions returns the dashboard defaults.
func DefaultOptions() Options {
	return Options{Bands: DefaultBands(), TopSpeedMinDistance: DefaultTopSpeedMinDistance}
}

// PersonalRecords groups every record shown on the dashboard.
type PersonalRecords struct {
	Races []RaceRecord
	Rides RideRecords
}

// Extract computes every race record and the ride records independently.
func Extract(activities []domain.Activity, opts Options) PersonalRecords {
	bands := opts.Bands
	if bands == nil {
		bands = DefaultBands()
	}
	out := PersonalRecords{Races: make([]RaceRecord, 0, len(bands))}
	for _, band := range bands {
		out.Races = append(out.Races, BestRacePace(activities, band))
	}
	out.Rides = Rides(activities, opts.TopSpeedMinDistance)
	return out
}
