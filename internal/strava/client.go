// Package strava fetches athlete activities from the Strava API.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/httputil"
)

// Default endpoints.
const (
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	DefaultAPIURL   = "https://www.strava.com/api/v3"
)

// MaxPageSize is the largest page the activities endpoint serves.
const MaxPageSize = 200

var (
	// ErrUnavailable wraps every failure to reach or use the Strava API.
	ErrUnavailable = errors.New("activity provider unavailable")
	// ErrNoRefreshToken is returned when no refresh token is available.
	ErrNoRefreshToken = errors.New("no strava refresh token")
)

// Config holds the Strava application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIURL       string
}

// Token is the result of a refresh. RefreshToken may differ from the one
// presented since Strava rotates refresh tokens.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Client talks to the Strava API.
type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// NewClient constructs a Client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: httpClient,
	}
}

// RefreshToken trades a stored refresh token for an access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrNoRefreshToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh token: %v", ErrUnavailable, err)
	}
	rotated := tok.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	return &Token{AccessToken: tok.AccessToken, RefreshToken: rotated, Expiry: tok.Expiry}, nil
}

// activity mirrors the fields of a Strava SummaryActivity used here.
type activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	TotalElevationGain *float64  `json:"total_elevation_gain"`
	StartDate          time.Time `json:"start_date"`
}

func (a activity) toDomain() domain.Activity {
	kind := a.SportType
	if kind == "" {
		kind = a.Type
	}
	out := domain.Activity{
		ID:         a.ID,
		Name:       a.Name,
		Type:       kind,
		Distance:   a.Distance,
		MovingTime: a.MovingTime,
		StartDate:  a.StartDate,
	}
	if a.TotalElevationGain != nil {
		out.ElevationGain = *a.TotalElevationGain
	}
	return out
}

// ListActivities returns the limit most recent activities started after since,
// newest first. A zero since lists without a lower bound.
//
// Strava serves ascending start dates once an after bound is set, so the
// window is walked from the newest activity downwards instead and paging stops
// at the first activity not after since.
func (c *Client) ListActivities(ctx context.Context, accessToken string, since time.Time, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		return nil, nil
	}
	perPage := limit
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}

	out := make([]domain.Activity, 0, perPage)
	for page := 1; ; page++ {
		batch, err := c.listPage(ctx, accessToken, page, perPage)
		if err != nil {
			return nil, err
		}
		reachedSince := false
		for _, a := range batch {
			if !since.IsZero() && !a.StartDate.After(since) {
				reachedSince = true
				continue
			}
			out = append(out, a.toDomain())
		}
		if reachedSince || len(out) >= limit || len(batch) < perPage {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) listPage(ctx context.Context, accessToken string, page, perPage int) ([]activity, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/athlete/activities?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := httputil.ParseErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("%w: list activities: %w", ErrUnavailable, err)
	}

	var batch []activity
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: decode activities: %v", ErrUnavailable, err)
	}
	return batch, nil
}
