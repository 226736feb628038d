package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/The-Simomatic/Sportisimo/internal/observability"
)

// State is the authentication state of a request.
type State int

const (
	Anonymous State = iota
	ExchangingCode
	Authenticated
)

func (s State) String() string {
	switch s {
	case ExchangingCode:
		return "exchanging_code"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

var (
	// ErrCodeExchange reports an invalid, expired or reused authorization code.
	ErrCodeExchange = errors.New("authorization code exchange failed")
	// ErrStateMismatch reports an OAuth callback whose state does not match the one issued.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrProviderRejected carries an error returned by the identity provider on redirect.
	ErrProviderRejected = errors.New("identity provider rejected the request")
)

// authParams are the transient query parameters left by auth redirects.
var authParams = []string{"code", "state", "type", "error", "error_code", "error_description"}

// Request is the ambient auth state of one incoming request.
type Request struct {
	Query url.Values
	// Token is the session token presented by the client, if any.
	Token string
	// ExpectedState is the OAuth state issued by BeginOAuth, if any.
	ExpectedState string
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	State   State
	Session *Session
	// Query is the request query with auth artifacts removed.
	Query url.Values
	// Redirect is set when the request carried auth artifacts that the client
	// should drop from its address.
	Redirect bool
	// Recovery is set when a password recovery link was followed.
	Recovery bool
	// AuthErr is a user-visible, non-fatal authentication failure.
	AuthErr error
	// LookupErr is set when the token could not be checked, as opposed to
	// checked and found dead. The token must then be kept.
	LookupErr error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the reconciler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// Reconciler turns ambient request state into a session.
type Reconciler struct {
	provider AuthProvider
	logger   *slog.Logger
}

// NewReconciler constructs a Reconciler backed by provider.
func NewReconciler(provider AuthProvider, opts ...Option) *Reconciler {
	r := &Reconciler{provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves the session for req. An authorization code is exchanged
// first; if that fails, the presented token is looked up instead. Failures
// never abort the request: they leave the result Anonymous with AuthErr set.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) Result {
	res := Result{
		State:    Anonymous,
		Query:    StripAuthParams(req.Query),
		Redirect: HasAuthParams(req.Query),
	}

	if desc := req.Query.Get("error_description"); desc != "" {
		res.AuthErr = fmt.Errorf("%w: %s", ErrProviderRejected, desc)
	} else if code := req.Query.Get("error"); code != "" {
		res.AuthErr = fmt.Errorf("%w: %s", ErrProviderRejected, code)
	}

	if code := strings.TrimSpace(req.Query.Get("code")); code != "" {
		res.State = ExchangingCode
		if s, err := r.exchange(ctx, code, req); err != nil {
			observability.RecordAuthFailure("exchange_code")
			r.logger.Info("code exchange failed, falling back to session lookup", "error", err)
			res.AuthErr = err
		} else {
			res.State = Authenticated
			res.Session = s
			res.Recovery = req.Query.Get("type") == "recovery"
			return res
		}
		res.State = Anonymous
	}

	s, err := r.provider.Session(ctx, req.Token)
	if err != nil {
		r.logger.Warn("session lookup failed", "error", err)
		res.LookupErr = err
		return res
	}
	if s != nil {
		res.State = Authenticated
		res.Session = s
	}
	return res
}

// exchange redeems code. Mailed links never carry a state, OAuth callbacks
// always do: a stateful code is only redeemed when it matches the state issued
// to this browser.
func (r *Reconciler) exchange(ctx context.Context, code string, req Request) (*Session, error) {
	var (
		s   *Session
		err error
	)
	if state := req.Query.Get("state"); state != "" {
		if req.ExpectedState == "" || state != req.ExpectedState {
			return nil, ErrStateMismatch
		}
		s, err = r.provider.ExchangeOAuthCode(ctx, code)
	} else {
		s, err = r.provider.ExchangeCode(ctx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeExchange, err)
	}
	if s == nil {
		return nil, ErrCodeExchange
	}
	return s, nil
}

// Logout ends the session denoted by token. The result is Anonymous with an
// empty query so no recovery or code flow can re-trigger.
func (r *Reconciler) Logout(ctx context.Context, token string) (Result, error) {
	res := Result{State: Anonymous, Query: url.Values{}, Redirect: true}
	if token == "" {
		return res, nil
	}
	if err := r.provider.SignOut(ctx, token); err != nil {
		return res, fmt.Errorf("sign out: %w", err)
	}
	return res, nil
}

// HasAuthParams reports whether query carries any transient auth parameter.
func HasAuthParams(query url.Values) bool {
	for _, key := range authParams {
		if _, ok := query[key]; ok {
			return true
		}
	}
	return false
}

// StripAuthParams returns a copy of query without the transient auth parameters.
func StripAuthParams(query url.Values) url.Values {
	out := make(url.Values, len(query))
	for key, values := range query {
		out[key] = append([]string(nil), values...)
	}
	for _, key := range authParams {
		out.Del(key)
	}
	return out
}
