package handlers

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runCheck(ctx context.Context, p pinger) Check {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// Health reports store and broker reachability. Redis is optional: an
// unconfigured broker is skipped, not failed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]Check{"store": runCheck(ctx, h.store)}
	if h.redis != nil {
		checks["redis"] = runCheck(ctx, h.redis)
	} else {
		checks["redis"] = Check{Status: "skip", Message: "not configured"}
	}
	if h.clients != nil {
		checks["realtime"] = Check{Status: "pass", Message: strconv.Itoa(h.clients.ClientCount()) + " clients"}
	}

	status, code := "healthy", http.StatusOK
	for _, c := range checks {
		if c.Status == "fail" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	h.JSON(w, code, HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  os.Getenv("HOSTNAME"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "twin",
		Version: version,
	})
}
