// Package rest exposes the operator-facing HTTP API: submitting downloads,
// controlling and inspecting them, and session cleanup.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/italolelis/cloudleecher/internal/logbuf"
	"github.com/italolelis/cloudleecher/internal/queue"
	"github.com/italolelis/cloudleecher/internal/status"
	"github.com/italolelis/cloudleecher/internal/suppress"
	"github.com/italolelis/cloudleecher/internal/telemetry"
)

const serviceName = "cloudleecher"

// InvalidPayloadError rejects a submission before it reaches the engine.
type InvalidPayloadError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// APIHandler wires the REST surface to the download stack.
type APIHandler struct {
	apiKey     string
	queue      *queue.Controller
	aggregator *status.Aggregator
	engine     engine.Client
	removed    *suppress.Set
	ring       *logbuf.Ring
	hist       *history.Store
	stagingDir string
	driveInfo  *driveInfoCache
	telemetry  *telemetry.Telemetry
	validate   *validator.Validate
}

type APIConfig struct {
	APIKey            string
	StagingDir        string
	DriveDir          string
	DriveInfoCacheTTL time.Duration
}

func NewAPIHandler(
	cfg APIConfig,
	qc *queue.Controller,
	agg *status.Aggregator,
	ec engine.Client,
	removed *suppress.Set,
	ring *logbuf.Ring,
	hist *history.Store,
	tel *telemetry.Telemetry,
) *APIHandler {
	return &APIHandler{
		apiKey:     cfg.APIKey,
		queue:      qc,
		aggregator: agg,
		engine:     ec,
		removed:    removed,
		ring:       ring,
		hist:       hist,
		stagingDir: cfg.StagingDir,
		driveInfo:  newDriveInfoCache(cfg.DriveDir, cfg.DriveInfoCacheTTL),
		telemetry:  tel,
		validate:   validator.New(),
	}
}

func (h *APIHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.apiKeyMiddleware)

		r.Post("/api/download/magnet", h.handleAddMagnet)
		r.Post("/api/download/file", h.handleAddFile)
		r.Get("/api/status", h.handleStatus)
		r.Post("/api/control/pause", h.handlePause)
		r.Post("/api/control/resume", h.handleResume)
		r.Post("/api/control/remove", h.handleRemove)
		r.Get("/api/drive/info", h.handleDriveInfo)
		r.Get("/api/logs", h.handleLogs)
		r.Post("/api/cleanup", h.handleCleanup)
	})

	return r
}

// apiKeyMiddleware checks the x-api-key header. With no key configured the
// API runs open.
func (h *APIHandler) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.Header.Get("x-api-key") != h.apiKey {
			writeError(w, http.StatusUnauthorized, "Unauthorized")

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// engineError maps failures talking to the engine onto HTTP status codes.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "download not found")
	case isUnreachable(err):
		writeError(w, http.StatusBadGateway, "download engine unreachable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isUnreachable(err error) bool {
	var unreachable *engine.UnreachableError

	return errors.As(err, &unreachable)
}
