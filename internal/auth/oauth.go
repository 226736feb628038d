package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
)

// OAuthConfig describes a generic OAuth2/OpenID Connect sign-in provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// Enabled reports whether enough is configured to offer OAuth sign-in.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.AuthURL != "" && c.TokenURL != "" && c.UserInfoURL != ""
}

// OAuthClient runs the authorization code flow against one provider.
type OAuthClient struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewOAuthClient constructs an OAuthClient. A nil httpClient uses http.DefaultClient.
func NewOAuthClient(cfg OAuthConfig, httpClient *http.Client) *OAuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  httpClient,
	}
}

// AuthCodeURL returns the URL the user is sent to for consent.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// UserInfo is the subset of the OpenID Connect userinfo response used here.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// Metadata maps the userinfo names onto registration metadata.
func (u UserInfo) Metadata() domain.Metadata {
	var meta domain.Metadata
	if u.GivenName != "" {
		given := u.GivenName
		meta.FirstName = &given
	}
	if u.FamilyName != "" {
		family := u.FamilyName
		meta.LastName = &family
	}
	return meta
}

// Exchange trades code for a token and fetches the user's profile with it.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*UserInfo, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	info.Email = strings.ToLower(strings.TrimSpace(info.Email))
	if info.Email == "" {
		return nil, errors.New("userinfo has no email")
	}
	if !info.EmailVerified {
		return nil, errors.New("userinfo email is not verified")
	}
	return &info, nil
}
