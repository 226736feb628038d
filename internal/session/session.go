// Package session resolves the authenticated identity of a request and carries
// it through the request context.
package session

import (
	"context"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/domain"
)

// Session is the request-scoped user handle.
type Session struct {
	ID        string
	Token     string
	ExpiresAt time.Time
	Identity  domain.Identity
}

// AuthProvider is the subset of the identity provider the reconciler depends on.
// Session returns (nil, nil) when token does not denote a live session.
type AuthProvider interface {
	ExchangeCode(ctx context.Context, code string) (*Session, error)
	ExchangeOAuthCode(ctx context.Context, code string) (*Session, error)
	Session(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string) error
}

type contextKey string

const (
	sessionKey contextKey = "sportisimo-session"
	resultKey  contextKey = "sportisimo-session-result"
)

// WithSession stores s on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext retrieves the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// WithResult stores the reconciliation outcome on the context.
func WithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, resultKey, res)
}

// ResultFromContext retrieves the outcome stored by WithResult.
func ResultFromContext(ctx context.Context) (Result, bool) {
	res, ok := ctx.Value(resultKey).(Result)
	return res, ok
}
