// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/hubctl/internal/harmony"
	"github.com/ManuGH/hubctl/internal/health"
	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the trigger surface the API drives. *trigger.Scheduler
// implements it.
type Controller interface {
	IdleStarted(ctx context.Context)
	IdleStopped()
	RunNow(ctx context.Context, dryRun bool) error
}

// RouterConfig wires the HTTP handlers.
type RouterConfig struct {
	Controller Controller
	Health     *health.Manager
	// RateLimit is the number of API requests per client and minute; zero
	// disables limiting.
	RateLimit int
	// ServiceName labels request spans; empty disables tracing.
	ServiceName string
	// MetricsHandler defaults to promhttp.Handler.
	MetricsHandler http.Handler
}

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type runResponse struct {
	Result   string `json:"result"`
	Duration string `json:"duration"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// NewRouter builds the control API:
//
//	POST /api/v1/idle/start   schedule a power-off
//	POST /api/v1/idle/stop    cancel it
//	POST /api/v1/poweroff     power off now
//	POST /api/v1/test         pair only, without a command
//	GET  /healthz /readyz /metrics
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	h := &handlers{ctrl: cfg.Controller}

	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(observe)

	r.Get("/healthz", cfg.Health.ServeHealth)
	r.Get("/readyz", cfg.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(rateLimit(cfg.RateLimit, time.Minute))
		}
		r.Post("/idle/start", h.idleStart)
		r.Post("/idle/stop", h.idleStop)
		r.Post("/poweroff", h.run(false))
		r.Post("/test", h.run(true))
	})

	if cfg.ServiceName == "" {
		return r
	}
	return tracing(cfg.ServiceName)(r)
}

type handlers struct {
	ctrl Controller
}

func (h *handlers) idleStart(w http.ResponseWriter, r *http.Request) {
	h.ctrl.IdleStarted(r.Context())
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "scheduled"})
}

func (h *handlers) idleStop(w http.ResponseWriter, _ *http.Request) {
	h.ctrl.IdleStopped()
	writeJSON(w, http.StatusOK, statusResponse{Status: "cancelled"})
}

func (h *handlers) run(dryRun bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := h.ctrl.RunNow(r.Context(), dryRun)
		elapsed := time.Since(start).Round(time.Millisecond).String()

		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, runResponse{Result: "success", Duration: elapsed})
		case harmony.IsCancelled(err):
			writeJSON(w, http.StatusOK, runResponse{Result: "cancelled", Duration: elapsed})
		default:
			logger := xglog.WithComponentFromContext(r.Context(), "api")
			logger.Warn().Err(err).Bool("dry_run", dryRun).Msg("power-off request failed")
			code, kind := classifyRunError(err)
			writeJSON(w, code, errorResponse{
				Error:     kind,
				Detail:    err.Error(),
				RequestID: xglog.RequestIDFromContext(r.Context()),
			})
		}
	}
}

// classifyRunError maps session errors onto HTTP status codes.
func classifyRunError(err error) (int, string) {
	switch {
	case errors.Is(err, harmony.ErrNoReply):
		return http.StatusGatewayTimeout, "no_reply"
	case errors.Is(err, harmony.ErrAuthentication):
		return http.StatusBadGateway, "authentication"
	case errors.Is(err, harmony.ErrProtocol):
		return http.StatusBadGateway, "protocol"
	case errors.Is(err, harmony.ErrTransport):
		return http.StatusBadGateway, "transport"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
