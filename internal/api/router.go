// Package api exposes the case analyzer over HTTP.
package api

import (
	"net/http"
	"time"

	"golang-redflag-service/internal/analyzer"
	"golang-redflag-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps ingest and rule update payloads.
const maxBodyBytes = 32 << 20

// Handler holds all HTTP handler dependencies.
type Handler struct {
	analyzer *analyzer.Analyzer
	logger   logger.Logger
}

// NewRouter creates the HTTP router and registers all routes.
func NewRouter(a *analyzer.Analyzer, log logger.Logger) *chi.Mux {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	h := &Handler{analyzer: a, logger: log.WithComponent("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/cases/{caseID}", func(r chi.Router) {
		r.Post("/ingest", h.ingest)
		r.Post("/analysis", h.analyze)
		r.Get("/alerts", h.alerts)
		r.Get("/transactions", h.transactions)
		r.Get("/metrics", h.metrics)
		r.Get("/rules", h.getRules)
		r.Put("/rules", h.putRules)
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := h.logger.WithFields(logger.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	})
}
