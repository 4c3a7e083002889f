package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Healthchecker is a component probed by the readiness endpoint.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated:
//   - Liveness probe: is the process serving HTTP?
//   - Readiness probe: are the database, cache index and storages reachable?
type HealthHandler struct {
	checks map[string]Healthchecker
}

// NewHealthHandler creates a new health handler over named components.
// Nil components are ignored.
func NewHealthHandler(checks map[string]Healthchecker) *HealthHandler {
	filtered := make(map[string]Healthchecker, len(checks))
	for name, c := range checks {
		if c != nil {
			filtered[name] = c
		}
	}
	return &HealthHandler{checks: filtered}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "nearstore",
	}))
}

// ComponentHealth is the probe result of one component.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Readiness handles GET /health/ready. It answers 503 when no component is
// registered or any of them fails its check.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if len(h.checks) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("no components registered"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make([]ComponentHealth, 0, len(names))
	allHealthy := true
	for _, name := range names {
		start := time.Now()
		err := h.checks[name].Healthcheck(ctx)

		health := ComponentHealth{Name: name, Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			health.Status = "unhealthy"
			health.Error = err.Error()
			allHealthy = false
		}
		components = append(components, health)
	}

	if allHealthy {
		writeJSON(w, http.StatusOK, healthyResponse(components))
	} else {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(components))
	}
}
