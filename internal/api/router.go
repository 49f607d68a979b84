// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/trackersync/internal/middleware"
	ws "github.com/tomtom215/trackersync/internal/websocket"
)

// Router wires Handler methods to chi routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil config uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, cfg *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(cfg),
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// ========================
	// Health Endpoints
	// ========================
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// ========================
	// Run Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", router.handler.ListRuns)
			r.With(router.chiMiddleware.RateLimitTrigger()).Post("/", router.handler.CreateRun)
			r.Get("/stale", router.handler.StaleRuns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", router.handler.GetRun)
				r.Get("/logs", router.handler.RunLogs)
				r.Post("/cancel", router.handler.CancelRun)
				r.Get("/resume", router.handler.ResumePlan)
				r.With(router.chiMiddleware.RateLimitTrigger()).Post("/resume", router.handler.ResumeRun)
			})
		})

		r.Get("/projects/status", router.handler.ProjectStatuses)

		if router.handler.hub != nil {
			r.Get("/ws", ws.Handler(router.handler.hub, router.chiMiddleware.AllowOrigin))
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
