// Package api exposes the HTTP surface of the dashboard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/The-Simomatic/Sportisimo/internal/auth"
	"github.com/The-Simomatic/Sportisimo/internal/dashboard"
	"github.com/The-Simomatic/Sportisimo/internal/domain"
	"github.com/The-Simomatic/Sportisimo/internal/observability"
	"github.com/The-Simomatic/Sportisimo/internal/pace"
	"github.com/The-Simomatic/Sportisimo/internal/session"
)

// oauthStateTTL bounds the round trip through the OAuth provider.
const oauthStateTTL = 10 * time.Minute

// Authenticator is the account management surface of the identity provider.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, meta domain.Metadata) (*domain.Identity, error)
	SignIn(ctx context.Context, email, password string) (*session.Session, error)
	RequestPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, token, password string) error
	BeginOAuth(ctx context.Context) (authURL, state string, err error)
}

// DashboardBuilder assembles the dashboard of a session.
type DashboardBuilder interface {
	Build(ctx context.Context, sess *session.Session) (*dashboard.Dashboard, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithSecureCookies marks issued cookies as HTTPS-only.
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) {
		h.secure = secure
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// Handler coordinates HTTP requests with the auth, profile and dashboard services.
type Handler struct {
	auth       Authenticator
	reconciler *session.Reconciler
	profiles   dashboard.ProfileSynchronizer
	dashboards DashboardBuilder
	secure     bool
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(authenticator Authenticator, reconciler *session.Reconciler, profiles dashboard.ProfileSynchronizer, dashboards DashboardBuilder, opts ...Option) *Handler {
	h := &Handler{
		auth:       authenticator,
		reconciler: reconciler,
		profiles:   profiles,
		dashboards: dashboards,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// landing reports the reconciled auth state. Mailed links and OAuth callbacks land here.
func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	res, _ := session.ResultFromContext(r.Context())
	resp := StateResponse{
		State:         res.State.String(),
		Authenticated: res.Session != nil,
		Recovery:      res.Recovery,
	}
	if res.Session != nil {
		resp.UserID = res.Session.Identity.ID
		resp.Email = res.Session.Identity.Email
	}
	if res.AuthErr != nil {
		resp.AuthError = res.AuthErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) paces(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("vma"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing vma parameter")
		return
	}
	vma, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "vma must be a number")
		return
	}
	paces, err := pace.Compute(vma)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPacesView(paces))
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	meta := req.Metadata()
	if err := domain.ValidateRegistration(meta, h.now()); err != nil {
		h.fail(w, r, err)
		return
	}

	identity, err := h.auth.SignUp(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SignUpResponse{
		UserID:           identity.ID,
		Email:            identity.Email,
		ConfirmationSent: true,
	})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	s, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	session.SetCookie(w, s, h.secure)
	writeJSON(w, http.StatusOK, SessionResponse{
		UserID:    s.Identity.ID,
		Email:     s.Identity.Email,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Logout(r.Context(), session.TokenFromRequest(r))
	if err != nil {
		h.logger.Warn("sign out failed", "error", err)
	}
	session.ClearCookie(w, session.CookieName, h.secure)
	writeJSON(w, http.StatusOK, StateResponse{State: res.State.String()})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		h.fail(w, r, auth.ErrMissingToken)
		return
	}
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.auth.UpdatePassword(r.Context(), s.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startOAuth(w http.ResponseWriter, r *http.Request) {
	authURL, state, err := h.auth.BeginOAuth(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	session.SetStateCookie(w, state, oauthStateTTL, h.secure)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	s, _ := session.FromContext(r.Context())
	d, err := h.dashboards.Build(r.Context(), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardView(d))
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		h.fail(w, r, dashboard.ErrUnauthenticated)
		return
	}
	profile, err := h.profiles.EnsureProfile(r.Context(), s.Identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(profile))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		h.fail(w, r, dashboard.ErrUnauthenticated)
		return
	}
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if _, err := h.profiles.EnsureProfile(r.Context(), s.Identity); err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.profiles.UpdateProfile(r.Context(), s.Identity.ID, req.Update())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(profile))
}

// fail maps err onto an HTTP problem response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, dashboard.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		writeError(w, http.StatusForbidden, "email_not_confirmed", err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, pace.ErrInvalidParameter):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, auth.ErrOAuthDisabled):
		writeError(w, http.StatusNotFound, "oauth_disabled", err.Error())
	case errors.Is(err, domain.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.logger.Error("store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "profile storage is temporarily unavailable")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		observability.CaptureError(err, map[string]string{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
