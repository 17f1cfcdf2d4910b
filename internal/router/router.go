package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remindmail/remindmail/internal/config"
	"github.com/remindmail/remindmail/internal/handler"
	"github.com/remindmail/remindmail/internal/metrics"
	"github.com/remindmail/remindmail/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, m *metrics.Metrics, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware (order matters: outermost first)
	r.Use(mw.Recover)
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(middleware.Instrument(m))

	// Health check and metrics endpoints
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Pages
	r.Get("/", h.Home)
	r.Get("/about", h.About)
	r.Get("/schedule", h.ScheduleForm)
	r.Get("/reminders", h.ListReminders)
	r.Handle("/static/*", handler.Static())

	// Submissions are rate limited per client when enabled
	scheduleRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "schedule",
		Limit:  cfg.Security.RateLimiting.Limit,
		Window: cfg.Security.RateLimiting.Window,
		KeyFn:  middleware.IPKey,
	})
	r.With(scheduleRateLimit).Post("/schedule", h.SubmitSchedule)

	return r
}
