package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/cassiomorais/storefront/internal/eventbus"
)

type HealthController struct {
	service string
	broker  eventbus.Pinger
}

// NewHealthController reports on service. A nil broker is always ready.
func NewHealthController(service string, broker eventbus.Pinger) *HealthController {
	return &HealthController{service: service, broker: broker}
}

func (h *HealthController) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Welcome to the " + h.service + " service!"})
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": h.service})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.broker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.broker.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "broker unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
