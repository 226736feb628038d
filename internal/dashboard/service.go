// Package dashboard assembles the per-user training dashboard.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/text/language"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/observability"
	"github.com/The-Simomatic/Sportisimo/internal/pace"
	"github.com/The-Simomatic/Sportisimo/internal/records"
	"github.com/The-Simomatic/Sportisimo/internal/session"
	"github.com/The-Simomatic/Sportisimo/internal/strava"
)

// ErrUnauthenticated is returned when no session is available.
var ErrUnauthenticated = errors.New("authentication required")

// ActivityProvider fetches activity history.
type ActivityProvider interface {
	RefreshToken(ctx context.Context, refreshToken string) (*strava.Token, error)
	ListActivities(ctx context.Context, accessToken string, since time.Time, limit int) ([]domain.Activity, error)
}

// ProfileSynchronizer resolves and updates the profile of an identity.
type ProfileSynchronizer interface {
	EnsureProfile(ctx context.Context, identity domain.Identity) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error)
}

// Config tunes dashboard assembly.
type Config struct {
	// Window bounds how far back activities are fetched.
	Window time.Duration
	// Limit caps the number of activities fetched.
	Limit int
	// RecentCount is the number of activities listed individually.
	RecentCount int
	// FallbackRefreshToken is used for profiles without their own token.
	FallbackRefreshToken string
	Records              records.Options
	Locale               language.Tag
}

// DefaultConfig returns a one-year window of at most 200 activities.
func DefaultConfig() Config {
	return Config{
		Window:      365 * 24 * time.Hour,
		Limit:       200,
		RecentCount: 10,
		Records:     records.DefaultOptions(),
		Locale:      language.French,
	}
}

// Dashboard is everything shown to an authenticated user.
type Dashboard struct {
	Profile        *domain.Profile
	Paces          pace.Formatted
	PacesKnown     bool
	Records        records.PersonalRecords
	Summary        records.Summary
	SummaryDisplay records.SummaryDisplay
	Recent         []domain.Activity
	// ActivityStatus is one of the observability.Fetch* outcomes.
	ActivityStatus string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service builds dashboards.
type Service struct {
	profiles   ProfileSynchronizer
	activities ActivityProvider
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service. A nil activities provider disables the
// activity section.
func NewService(profiles ProfileSynchronizer, activities ActivityProvider, cfg Config, opts ...Option) *Service {
	s := &Service{
		profiles:   profiles,
		activities: activities,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build resolves the profile of sess and derives paces and records from it.
// Activity failures leave the activity sections empty.
func (s *Service) Build(ctx context.Context, sess *session.Session) (*Dashboard, error) {
	if sess == nil {
		return nil, ErrUnauthenticated
	}

	profile, err := s.profiles.EnsureProfile(ctx, sess.Identity)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Profile: profile, Paces: pace.PlaceholderFormatted()}
	if paces, err := pace.Compute(profile.VMA); err == nil {
		d.Paces = paces.Formatted()
		d.PacesKnown = true
	} else {
		s.logger.Warn("stored vma unusable", "user_id", profile.ID, "vma", profile.VMA)
	}

	activities, status := s.fetchActivities(ctx, profile)
	observability.RecordActivityFetch(status)
	d.ActivityStatus = status

	d.Records = records.Extract(activities, s.cfg.Records)
	d.Summary = records.Summarize(activities)
	d.SummaryDisplay = d.Summary.Display(s.cfg.Locale)
	d.Recent = recent(activities, s.cfg.RecentCount)
	return d, nil
}

func (s *Service) fetchActivities(ctx context.Context, profile *domain.Profile) ([]domain.Activity, string) {
	if s.activities == nil {
		return nil, observability.FetchSkipped
	}

	ownToken := profile.StravaRefreshToken != nil && *profile.StravaRefreshToken != ""
	refreshToken := s.cfg.FallbackRefreshToken
	if ownToken {
		refreshToken = *profile.StravaRefreshToken
	}
	if refreshToken == "" {
		return nil, observability.FetchSkipped
	}

	token, err := s.activities.RefreshToken(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("activity token refresh failed", "user_id", profile.ID, "error", err)
		return nil, observability.FetchNoAccess
	}

	if ownToken && !profile.Degraded && token.RefreshToken != "" && token.RefreshToken != refreshToken {
		rotated := token.RefreshToken
		if _, err := s.profiles.UpdateProfile(ctx, profile.ID, domain.ProfileUpdate{StravaRefreshToken: &rotated}); err != nil {
			s.logger.Warn("storing rotated refresh token failed", "user_id", profile.ID, "error", err)
		} else {
			profile.StravaRefreshToken = &rotated
		}
	}

	since := s.now().Add(-s.cfg.Window)
	activities, err := s.activities.ListActivities(ctx, token.AccessToken, since, s.cfg.Limit)
	if err != nil {
		s.logger.Warn("activity fetch failed", "user_id", profile.ID, "error", err)
		observability.CaptureError(err, map[string]string{"operation": "activities.list"})
		return nil, observability.FetchFailed
	}
	return activities, observability.FetchOK
}

func recent(activities []domain.Activity, n int) []domain.Activity {
	if n <= 0 || len(activities) == 0 {
		return []domain.Activity{}
	}
	sorted := append([]domain.Activity(nil), activities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.After(sorted[j].StartDate)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
