// Package httpapi exposes the tracker over REST. Callers are expected to sit
// behind a gateway that authenticates the user in the path.
package httpapi

import (
	"net/http"
	"time"

	"taharah_tracker/internal/app"
	"taharah_tracker/internal/domain/profile"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handler holds the services the REST routes call into.
type Handler struct {
	cycles        *app.CycleService
	notifications *app.NotificationService
	profiles      profile.Repository
	clock         app.Clock
	logger        *logrus.Entry
}

func NewHandler(cycles *app.CycleService, notifications *app.NotificationService, profiles profile.Repository, clock app.Clock, logger *logrus.Entry) *Handler {
	return &Handler{
		cycles:        cycles,
		notifications: notifications,
		profiles:      profiles,
		clock:         clock,
		logger:        logger.WithField("component", "httpapi"),
	}
}

// NewRouter builds the chi router with all routes mounted.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", h.ListCycles)
			r.Post("/", h.StartCycle)
			r.Route("/{cycleID}", func(r chi.Router) {
				r.Get("/", h.GetCycle)
				r.Delete("/", h.DeleteCycle)
				r.Post("/events", h.ApplyEvent)
			})
		})
		r.Get("/predictions", h.ListPredictions)
		r.Get("/notifications", h.ListNotifications)
		r.Get("/activity", h.ListActivity)
		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences", h.PutPreferences)
	})
	return r
}

func requestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  chimiddleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}
