package session

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Cookie names.
const (
	CookieName      = "sportisimo_session"
	StateCookieName = "sportisimo_oauth_state"
	flashCookieName = "sportisimo_auth_error"
)

// Middleware reconciles every request and stores the outcome in its context.
// Requests carrying auth artifacts in their query are answered with a redirect
// to the same path without them.
type Middleware struct {
	Reconciler *Reconciler
	// Secure marks issued cookies as HTTPS-only.
	Secure bool
}

// NewMiddleware constructs a Middleware.
func NewMiddleware(reconciler *Reconciler, secure bool) Middleware {
	return Middleware{Reconciler: reconciler, Secure: secure}
}

// Wrap attaches reconciliation to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			Query:         r.URL.Query(),
			Token:         TokenFromRequest(r),
			ExpectedState: cookieValue(r, StateCookieName),
		}
		res := m.Reconciler.Reconcile(r.Context(), req)

		if res.Session != nil && res.Session.Token != req.Token {
			SetCookie(w, res.Session, m.Secure)
		}
		if res.Session == nil && req.Token != "" && res.LookupErr == nil {
			ClearCookie(w, CookieName, m.Secure)
		}
		if _, ok := r.URL.Query()["state"]; ok {
			ClearCookie(w, StateCookieName, m.Secure)
		}

		if res.Redirect && r.Method == http.MethodGet {
			if res.AuthErr != nil {
				http.SetCookie(w, &http.Cookie{
					Name:     flashCookieName,
					Value:    url.QueryEscape(res.AuthErr.Error()),
					Path:     "/",
					MaxAge:   60,
					HttpOnly: true,
					Secure:   m.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			target := *r.URL
			target.RawQuery = res.Query.Encode()
			if res.Recovery {
				q := target.Query()
				q.Set("recovery", "1")
				target.RawQuery = q.Encode()
			}
			http.Redirect(w, r, target.RequestURI(), http.StatusSeeOther)
			return
		}

		if res.AuthErr == nil {
			if flash := cookieValue(r, flashCookieName); flash != "" {
				if msg, err := url.QueryUnescape(flash); err == nil {
					res.AuthErr = errors.New(msg)
				}
				ClearCookie(w, flashCookieName, m.Secure)
			}
		}
		if !res.Recovery && res.Session != nil && r.URL.Query().Get("recovery") == "1" {
			res.Recovery = true
		}

		ctx := WithResult(r.Context(), res)
		if res.Session != nil {
			ctx = WithSession(ctx, res.Session)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromRequest returns the bearer token or, failing that, the session cookie.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return cookieValue(r, CookieName)
}

// SetCookie issues the session cookie for s.
func SetCookie(w http.ResponseWriter, s *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetStateCookie remembers the OAuth state issued for a sign-in redirect.
func SetStateCookie(w http.ResponseWriter, state string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the named cookie.
func ClearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
