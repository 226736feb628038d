package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/The-Simomatic/Sportisimo/internal/session"
)

// NewRouter wires the endpoints. Routes under the session group see the
// reconciled session in their context.
func NewRouter(h *Handler, sessions session.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/paces", h.paces)

	r.Group(func(r chi.Router) {
		r.Use(sessions.Wrap)

		r.Get("/", h.landing)
		r.Route("/v1/auth", func(r chi.Router) {
			r.Post("/signup", h.signUp)
			r.Post("/signin", h.signIn)
			r.Post("/signout", h.signOut)
			r.Post("/password/reset", h.requestPasswordReset)
			r.Post("/password/update", h.updatePassword)
			r.Get("/oauth/start", h.startOAuth)
		})
		r.Get("/v1/dashboard", h.dashboard)
		r.Get("/v1/profile", h.getProfile)
		r.Patch("/v1/profile", h.updateProfile)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
