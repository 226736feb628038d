package api

import (
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/dashboard"
	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/pace"
	"github.com/The-Simomatic/Sportisimo/internal/records"
)

// SignUpRequest is the payload for POST /v1/auth/signup.
type SignUpRequest struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	BirthDate *string  `json:"birth_date"`
	Weight    *float64 `json:"weight"`
	Sex       *string  `json:"sex"`
	Sport     *string  `json:"sport"`
	Level     *string  `json:"level"`
}

// Metadata extracts the registration details.
func (r SignUpRequest) Metadata() domain.Metadata {
	return domain.Metadata{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		BirthDate: r.BirthDate,
		Weight:    r.Weight,
		Sex:       r.Sex,
		Sport:     r.Sport,
		Level:     r.Level,
	}
}

// SignUpResponse acknowledges a registration awaiting email confirmation.
type SignUpResponse struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	ConfirmationSent bool   `json:"confirmation_sent"`
}

// CredentialsRequest carries an email and/or password.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse describes a freshly opened session.
type SessionResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StateResponse reports the reconciled auth state of a request.
type StateResponse struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	Recovery      bool   `json:"recovery,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	AuthError     string `json:"auth_error,omitempty"`
}

// UpdateProfileRequest is the payload for PATCH /v1/profile. Absent fields are kept.
type UpdateProfileRequest struct {
	VMA                *float64 `json:"vma"`
	WeightKg           *float64 `json:"weight_kg"`
	StravaRefreshToken *string  `json:"strava_refresh_token"`
}

// Update converts the request into a domain update.
func (r UpdateProfileRequest) Update() domain.ProfileUpdate {
	return domain.ProfileUpdate{
		VMA:                r.VMA,
		WeightKg:           r.WeightKg,
		StravaRefreshToken: r.StravaRefreshToken,
	}
}

// ProfileView is the public form of a profile. The Strava token is never exposed.
type ProfileView struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	BirthDate    string    `json:"birth_date,omitempty"`
	WeightKg     float64   `json:"weight_kg"`
	Sex          string    `json:"sex,omitempty"`
	Sport        string    `json:"sport"`
	Level        string    `json:"level"`
	Status       string    `json:"status"`
	VMA          float64   `json:"vma"`
	StravaLinked bool      `json:"strava_linked"`
	Degraded     bool      `json:"degraded,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PaceView is one training pace.
type PaceView struct {
	SecondsPerKm float64 `json:"seconds_per_km"`
	Display      string  `json:"display"`
}

// PacesView groups the three training paces of a VMA.
type PacesView struct {
	VMA       float64  `json:"vma"`
	Endurance PaceView `json:"endurance"`
	Threshold PaceView `json:"threshold"`
	Maximal   PaceView `json:"maximal"`
}

// RaceRecordView is the best effort in one race band.
type RaceRecordView struct {
	Race       string     `json:"race"`
	Known      bool       `json:"known"`
	Seconds    float64    `json:"seconds,omitempty"`
	Display    string     `json:"display"`
	ActivityID int64      `json:"activity_id,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
}

// RideRecordsView summarises the best rides.
type RideRecordsView struct {
	LongestDistanceKm      float64 `json:"longest_distance_km"`
	LongestDuration        int     `json:"longest_duration_seconds"`
	LongestDurationDisplay string  `json:"longest_duration_display"`
	MaxElevationGain       float64 `json:"max_elevation_gain_m"`
	TopSpeedKmh            float64 `json:"top_speed_kmh"`
}

// SportTotalsView is the per-sport part of the summary.
type SportTotalsView struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	DistanceKm float64 `json:"distance_km"`
	MovingTime int     `json:"moving_time_seconds"`
}

// SummaryView aggregates the fetched window.
type SummaryView struct {
	Count         int                    `json:"count"`
	DistanceKm    float64                `json:"distance_km"`
	MovingTime    int                    `json:"moving_time_seconds"`
	ElevationGain float64                `json:"elevation_gain_m"`
	BySport       []SportTotalsView      `json:"by_sport"`
	Display       records.SummaryDisplay `json:"display"`
}

// ActivityView is one recent activity.
type ActivityView struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Distance      float64   `json:"distance_m"`
	MovingTime    int       `json:"moving_time_seconds"`
	ElevationGain float64   `json:"elevation_gain_m"`
	StartDate     time.Time `json:"start_date"`
}

// DashboardView is the response body of GET /v1/dashboard.
type DashboardView struct {
	Profile        ProfileView      `json:"profile"`
	Paces          pace.Formatted   `json:"paces"`
	PacesKnown     bool             `json:"paces_known"`
	Races          []RaceRecordView `json:"races"`
	Rides          RideRecordsView  `json:"rides"`
	Summary        SummaryView      `json:"summary"`
	Recent         []ActivityView   `json:"recent"`
	ActivityStatus string           `json:"activity_status"`
}

func toProfileView(p *domain.Profile) ProfileView {
	view := ProfileView{
		UserID:       p.ID,
		Email:        p.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		WeightKg:     p.WeightKg,
		Sex:          p.Sex,
		Sport:        p.Sport,
		Level:        p.Level,
		Status:       string(p.Status),
		VMA:          p.VMA,
		StravaLinked: p.StravaRefreshToken != nil && *p.StravaRefreshToken != "",
		Degraded:     p.Degraded,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.BirthDate != nil {
		view.BirthDate = p.BirthDate.Format(domain.BirthDateLayout)
	}
	return view
}

func toPacesView(p pace.Paces) PacesView {
	f := p.Formatted()
	return PacesView{
		VMA:       p.VMA,
		Endurance: PaceView{SecondsPerKm: p.Endurance, Display: f.Endurance},
		Threshold: PaceView{SecondsPerKm: p.Threshold, Display: f.Threshold},
		Maximal:   PaceView{SecondsPerKm: p.Maximal, Display: f.Maximal},
	}
}

func toDashboardView(d *dashboard.Dashboard) DashboardView {
	view := DashboardView{
		Profile:    toProfileView(d.Profile),
		Paces:      d.Paces,
		PacesKnown: d.PacesKnown,
		Races:      make([]RaceRecordView, 0, len(d.Records.Races)),
		Rides: RideRecordsView{
			LongestDistanceKm:      d.Records.Rides.LongestDistance / 1000,
			LongestDuration:        d.Records.Rides.LongestDuration,
			LongestDurationDisplay: d.Records.Rides.LongestDurationDisplay,
			MaxElevationGain:       d.Records.Rides.MaxElevationGain,
			TopSpeedKmh:            d.Records.Rides.TopSpeed,
		},
		Summary: SummaryView{
			Count:         d.Summary.Count,
			DistanceKm:    d.Summary.Distance / 1000,
			MovingTime:    d.Summary.MovingTime,
			ElevationGain: d.Summary.ElevationGain,
			BySport:       make([]SportTotalsView, 0, len(d.Summary.BySport)),
			Display:       d.SummaryDisplay,
		},
		Recent:         make([]ActivityView, 0, len(d.Recent)),
		ActivityStatus: d.ActivityStatus,
	}

	for _, race := range d.Records.Races {
		rv := RaceRecordView{Race: race.Band.Name, Known: race.Known, Display: race.Display}
		if race.Known {
			start := race.StartDate
			rv.Seconds = race.Seconds
			rv.ActivityID = race.ActivityID
			rv.StartDate = &start
		}
		view.Races = append(view.Races, rv)
	}
	for _, s := range d.Summary.BySport {
		view.Summary.BySport = append(view.Summary.BySport, SportTotalsView{
			Type:       s.Type,
			Count:      s.Count,
			DistanceKm: s.Distance / 1000,
			MovingTime: s.MovingTime,
		})
	}
	for _, a := range d.Recent {
		view.Recent = append(view.Recent, ActivityView{
			ID:            a.ID,
			Name:          a.Name,
			Type:          a.Type,
			Distance:      a.Distance,
			MovingTime:    a.MovingTime,
			ElevationGain: a.ElevationGain,
			StartDate:     a.StartDate,
		})
	}
	return view
}
