package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"latera/internal/coordinator"
	"latera/internal/coreerr"
	"latera/internal/logging"
	"latera/internal/metrics"
	"latera/internal/version"
)

// Coordinator is the lifecycle surface the API drives.
type Coordinator interface {
	Start(ctx context.Context) (coordinator.StartResult, error)
	Stop(ctx context.Context) *coreerr.Error
	Snapshot() coordinator.Snapshot
	Subscribe() (<-chan coordinator.Update, func())
}

type Options struct {
	Coordinator    Coordinator
	Logger         *logging.Logger
	Registry       *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	// RateLimit is lifecycle requests per second; zero disables limiting.
	RateLimit         float64
	RateBurst         int
	HeartbeatInterval time.Duration
}

type RestHandler struct {
	Coordinator Coordinator
	Logger      *logging.Logger
	Registry    *metrics.Registry
	ServerStart time.Time
}

type statusResponse struct {
	coordinator.Snapshot
	ServerTime time.Time `json:"server_time"`
	Uptime     string    `json:"uptime"`
	Version    string    `json:"version"`
	GitCommit  string    `json:"git_commit,omitempty"`
}

type startResponse struct {
	WatchDir string            `json:"watch_dir"`
	State    coordinator.State `json:"state"`
}

type stopResponse struct {
	State coordinator.State `json:"state"`
}

func (h *RestHandler) requireCoordinator() *apiError {
	if h.Coordinator == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "coordinator unavailable"}
	}
	return nil
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireCoordinator(); err != nil {
		return err
	}
	now := time.Now().UTC()
	info := version.GetVersionInfo()
	writeJSON(w, http.StatusOK, statusResponse{
		Snapshot:   h.Coordinator.Snapshot(),
		ServerTime: now,
		Uptime:     now.Sub(h.ServerStart).Round(time.Second).String(),
		Version:    info.Version,
		GitCommit:  info.GitCommit,
	})
	return nil
}

func (h *RestHandler) handleStart(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireCoordinator(); err != nil {
		return err
	}
	result, err := h.Coordinator.Start(r.Context())
	if errors.Is(err, coordinator.ErrDisposed) {
		return &apiError{Status: http.StatusConflict, Message: "coordinator disposed", Code: "disposed"}
	}
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	if !result.OK() {
		return apiErrorFromCore(result.Err)
	}
	writeJSON(w, http.StatusOK, startResponse{
		WatchDir: result.WatchDir,
		State:    h.Coordinator.Snapshot().State,
	})
	return nil
}

func (h *RestHandler) handleStop(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireCoordinator(); err != nil {
		return err
	}
	if err := h.Coordinator.Stop(r.Context()); err != nil {
		return apiErrorFromCore(err)
	}
	writeJSON(w, http.StatusOK, stopResponse{State: h.Coordinator.Snapshot().State})
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.Registry.WritePrometheus(w); err != nil {
		h.Logger.Warn("metrics write failed", map[string]string{"error": err.Error()})
	}
	return nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
