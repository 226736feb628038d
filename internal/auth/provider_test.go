package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/The-Simomatic/Sportisimo/internal/auth"
	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/persistence/memory"
)

var tokenCfg = auth.TokenConfig{Secret: "test-secret", Issuer: "sportisimo.test", TTL: time.Hour}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newProvider(t *testing.T, opts ...auth.Option) (*auth.Provider, *memory.IdentityStore, *clock) {
	t.Helper()
	store := memory.NewIdentityStore()
	c := &clock{now: time.Now().UTC()}
	base := []auth.Option{auth.WithClock(c.Now), auth.WithBcryptCost(bcrypt.MinCost)}
	return auth.NewProvider(store, tokenCfg, append(base, opts...)...), store, c
}

func TestSignUpRequiresConfirmationBeforeSignIn(t *testing.T) {
	provider, store, _ := newProvider(t)
	ctx := context.Background()
	first := "Léa"

	identity, err := provider.SignUp(ctx, "Lea@Example.fr", "secret123", domain.Metadata{FirstName: &first})
	require.NoError(t, err)
	require.Equal(t, "lea@example.fr", identity.Email)
	require.Equal(t, "Léa", *identity.Metadata.FirstName)

	_, err = provider.SignIn(ctx, "lea@example.fr", "secret123")
	require.ErrorIs(t, err, auth.ErrEmailNotConfirmed)

	code, ok := store.LastCode("lea@example.fr", auth.PurposeConfirm)
	require.True(t, ok)
	require.Equal(t, "Léa", code.FirstName)

	confirmed, err := provider.ExchangeCode(ctx, code.Plain)
	require.NoError(t, err)
	require.Equal(t, identity.ID, confirmed.Identity.ID)

	s, err := provider.SignIn(ctx, "LEA@example.fr", "secret123")
	require.NoError(t, err)
	require.Equal(t, identity.ID, s.Identity.ID)
	require.NotEmpty(t, s.Token)
}

func TestSignUpRejectsDuplicatesAndBadInput(t *testing.T) {
	provider, _, _ := newProvider(t)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "dup@example.fr", "secret123", domain.Metadata{})
	require.NoError(t, err)

	_, err = provider.SignUp(ctx, "DUP@example.fr", "another1", domain.Metadata{})
	require.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = provider.SignUp(ctx, "not-an-email", "secret123", domain.Metadata{})
	require.ErrorIs(t, err, auth.ErrInvalidEmail)

	_, err = provider.SignUp(ctx, "short@example.fr", "abc", domain.Metadata{})
	require.ErrorIs(t, err, auth.ErrWeakPassword)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	provider, store, _ := newProvider(t)
	ctx := context.Background()
	_, err := provider.SignUp(ctx, "run@example.fr", "secret123", domain.Metadata{})
	require.NoError(t, err)
	code, _ := store.LastCode("run@example.fr", auth.PurposeConfirm)
	_, err = provider.ExchangeCode(ctx, code.Plain)
	require.NoError(t, err)

	_, err = provider.SignIn(ctx, "run@example.fr", "wrong-password")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = provider.SignIn(ctx, "nobody@example.fr", "secret123")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSessionLifecycle(t *testing.T) {
	provider, store, c := newProvider(t)
	ctx := context.Background()
	_, err := provider.SignUp(ctx, "s@example.fr", "secret123", domain.Metadata{})
	require.NoError(t, err)
	code, _ := store.LastCode("s@example.fr", auth.PurposeConfirm)
	opened, err := provider.ExchangeCode(ctx, code.Plain)
	require.NoError(t, err)

	live, err := provider.Session(ctx, opened.Token)
	require.NoError(t, err)
	require.NotNil(t, live)
	require.Equal(t, opened.Identity.ID, live.Identity.ID)

	none, err := provider.Session(ctx, "")
	require.NoError(t, err)
	require.Nil(t, none)

	garbage, err := provider.Session(ctx, "not-a-jwt")
	require.NoError(t, err)
	require.Nil(t, garbage)

	require.NoError(t, provider.SignOut(ctx, opened.Token))
	revoked, err := provider.Session(ctx, opened.Token)
	require.NoError(t, err)
	require.Nil(t, revoked)

	again, err := provider.SignIn(ctx, "s@example.fr", "secret123")
	require.NoError(t, err)
	c.now = c.now.Add(2 * time.Hour)
	expired, err := provider.Session(ctx, again.Token)
	require.NoError(t, err)
	require.Nil(t, expired)
}

func TestExchangeCodeRejectsReusedAndExpiredCodes(t *testing.T) {
	provider, store, c := newProvider(t, auth.WithCodeTTL(time.Minute))
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "once@example.fr", "secret123", domain.Metadata{})
	require.NoError(t, err)
	code, _ := store.LastCode("once@example.fr", auth.PurposeConfirm)

	_, err = provider.ExchangeCode(ctx, code.Plain)
	require.NoError(t, err)
	_, err = provider.ExchangeCode(ctx, code.Plain)
	require.ErrorIs(t, err, auth.ErrInvalidCode)

	require.NoError(t, provider.RequestPasswordReset(ctx, "once@example.fr"))
	recovery, _ := store.LastCode("once@example.fr", auth.PurposeRecovery)
	c.now = c.now.Add(2 * time.Minute)
	_, err = provider.ExchangeCode(ctx, recovery.Plain)
	require.ErrorIs(t, err, auth.ErrInvalidCode)

	_, err = provider.ExchangeCode(ctx, "")
	require.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	provider, store, _ := newProvider(t)
	ctx := context.Background()
	_, err := provider.SignUp(ctx, "forgot@example.fr", "oldpass1", domain.Metadata{})
	require.NoError(t, err)
	confirm, _ := store.LastCode("forgot@example.fr", auth.PurposeConfirm)
	_, err = provider.ExchangeCode(ctx, confirm.Plain)
	require.NoError(t, err)

	require.NoError(t, provider.RequestPasswordReset(ctx, "forgot@example.fr"))
	recovery, ok := store.LastCode("forgot@example.fr", auth.PurposeRecovery)
	require.True(t, ok)

	s, err := provider.ExchangeCode(ctx, recovery.Plain)
	require.NoError(t, err)

	require.ErrorIs(t, provider.UpdatePassword(ctx, s.Token, "x"), auth.ErrWeakPassword)
	require.NoError(t, provider.UpdatePassword(ctx, s.Token, "newpass1"))

	_, err = provider.SignIn(ctx, "forgot@example.fr", "oldpass1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = provider.SignIn(ctx, "forgot@example.fr", "newpass1")
	require.NoError(t, err)

	require.ErrorIs(t, provider.UpdatePassword(ctx, "bogus", "newpass2"), auth.ErrInvalidToken)
}

func TestPasswordResetForUnknownEmailIsSilent(t *testing.T) {
	provider, store, _ := newProvider(t)
	require.NoError(t, provider.RequestPasswordReset(context.Background(), "ghost@example.fr"))
	require.Empty(t, store.Issued())
}

// oauthServer serves a token endpoint accepting "provider-code" and a
// userinfo endpoint answering with profile.
func oauthServer(t *testing.T, profile map[string]interface{}) *auth.OAuthClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "provider-code" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "access-1",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer access-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(profile)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return auth.NewOAuthClient(auth.OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
		RedirectURL:  "http://localhost:8080/v1/dashboard",
	}, srv.Client())
}

func TestOAuthSignIn(t *testing.T) {
	client := oauthServer(t, map[string]interface{}{
		"sub":            "g-123",
		"email":          "Trail@Example.fr",
		"email_verified": true,
		"given_name":     "Camille",
		"family_name":    "Durand",
	})
	provider, _, _ := newProvider(t, auth.WithOAuth(client))
	ctx := context.Background()

	authURL, state, err := provider.BeginOAuth(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, state)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, state, parsed.Query().Get("state"))
	require.Equal(t, "http://localhost:8080/v1/dashboard", parsed.Query().Get("redirect_uri"))

	first, err := provider.ExchangeOAuthCode(ctx, "provider-code")
	require.NoError(t, err)
	require.Equal(t, "trail@example.fr", first.Identity.Email)
	require.Equal(t, "Camille", *first.Identity.Metadata.FirstName)

	second, err := provider.ExchangeOAuthCode(ctx, "provider-code")
	require.NoError(t, err)
	require.Equal(t, first.Identity.ID, second.Identity.ID)

	_, err = provider.ExchangeOAuthCode(ctx, "bad-code")
	require.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestExchangeCodeDoesNotFallBackToOAuth(t *testing.T) {
	client := oauthServer(t, map[string]interface{}{"email": "trail@example.fr", "email_verified": true})
	provider, _, _ := newProvider(t, auth.WithOAuth(client))

	_, err := provider.ExchangeCode(context.Background(), "provider-code")
	require.ErrorIs(t, err, auth.ErrInvalidCode)
}

func TestOAuthSignInRejectsUnverifiedEmail(t *testing.T) {
	client := oauthServer(t, map[string]interface{}{"email": "trail@example.fr", "email_verified": false})
	provider, store, _ := newProvider(t, auth.WithOAuth(client))
	ctx := context.Background()

	_, err := provider.ExchangeOAuthCode(ctx, "provider-code")
	require.ErrorIs(t, err, auth.ErrInvalidCode)

	rec, err := store.IdentityByEmail(ctx, "trail@example.fr")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestOAuthSignInRevokesPasswordPlantedOnUnconfirmedAccount(t *testing.T) {
	client := oauthServer(t, map[string]interface{}{"email": "victim@example.fr", "email_verified": true})
	provider, _, _ := newProvider(t, auth.WithOAuth(client))
	ctx := context.Background()

	squatted, err := provider.SignUp(ctx, "victim@example.fr", "attackerpw", domain.Metadata{})
	require.NoError(t, err)

	s, err := provider.ExchangeOAuthCode(ctx, "provider-code")
	require.NoError(t, err)
	require.Equal(t, squatted.ID, s.Identity.ID)

	_, err = provider.SignIn(ctx, "victim@example.fr", "attackerpw")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestOAuthSignInKeepsPasswordOfConfirmedAccount(t *testing.T) {
	client := oauthServer(t, map[string]interface{}{"email": "lea@example.fr", "email_verified": true})
	provider, store, _ := newProvider(t, auth.WithOAuth(client))
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "lea@example.fr", "secret123", domain.Metadata{})
	require.NoError(t, err)
	code, ok := store.LastCode("lea@example.fr", auth.PurposeConfirm)
	require.True(t, ok)
	_, err = provider.ExchangeCode(ctx, code.Plain)
	require.NoError(t, err)

	_, err = provider.ExchangeOAuthCode(ctx, "provider-code")
	require.NoError(t, err)

	_, err = provider.SignIn(ctx, "lea@example.fr", "secret123")
	require.NoError(t, err)
}

func TestBeginOAuthDisabled(t *testing.T) {
	provider, _, _ := newProvider(t)
	_, _, err := provider.BeginOAuth(context.Background())
	require.ErrorIs(t, err, auth.ErrOAuthDisabled)
	require.False(t, provider.OAuthEnabled())
}
