package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	OK        bool             `json:"ok"`
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health handles the health check endpoint. Redis is required; the
// profile database is optional and skipped when not configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	if h.mailbox != nil {
		checks["redis"] = check(ctx, h.mailbox)
	} else {
		checks["redis"] = Check{Status: "fail", Message: "not configured"}
	}
	if checks["redis"].Status == "fail" {
		allHealthy = false
	}

	if h.profiles != nil {
		checks["profiles"] = check(ctx, h.profiles)
		if checks["profiles"].Status == "fail" {
			allHealthy = false
		}
	} else {
		checks["profiles"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	hostname, _ := os.Hostname()
	h.JSON(w, statusCode, HealthResponse{
		OK:        allHealthy,
		Status:    status,
		Version:   version,
		Instance:  hostname,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func check(ctx context.Context, p pinger) Check {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	OK      bool   `json:"ok"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		OK:      true,
		Name:    "sdominanta",
		Version: version,
	})
}
