package rest

import (
	"encoding/json"
	"net/http"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/logctx"
)

// controlRequest addresses one download. Control endpoints carry the
// identifier in the body, not the path.
type controlRequest struct {
	GID string `json:"gid" validate:"required"`
}

func (h *APIHandler) decodeControl(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return "", false
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "gid is required")

		return "", false
	}

	return req.GID, true
}

func (h *APIHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.decodeControl(w, r)
	if !ok {
		return
	}

	if err := h.engine.Pause(r.Context(), gid); err != nil {
		engineError(w, err)

		return
	}

	logctx.LoggerFromContext(r.Context()).Info("download paused", "operation", "pause", "gid", gid)

	writeJSON(w, http.StatusOK, map[string]string{"status": "paused", "gid": gid})
}

func (h *APIHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.decodeControl(w, r)
	if !ok {
		return
	}

	if err := h.engine.Unpause(r.Context(), gid); err != nil {
		engineError(w, err)

		return
	}

	logctx.LoggerFromContext(r.Context()).Info("download resumed", "operation", "resume", "gid", gid)

	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed", "gid": gid})
}

// handleRemove removes a download. Removal is idempotent: a GID the engine
// no longer knows still reports success, and the identifier is suppressed
// from listings until the engine confirms it's gone.
func (h *APIHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	gid, ok := h.decodeControl(w, r)
	if !ok {
		return
	}

	if err := h.engine.ForceRemove(r.Context(), gid); err != nil && !engine.IsNotFound(err) {
		engineError(w, err)

		return
	}

	// The stopped-result entry lingers after a force remove; drop it so the
	// engine's registry stays clean. Not found here just means it was a
	// live download.
	if err := h.engine.RemoveResult(r.Context(), gid); err != nil && !engine.IsNotFound(err) {
		logger.Warn("failed to drop result after remove", "operation", "remove", "gid", gid, "err", err)
	}

	h.removed.Add(gid)

	logger.Info("download removed", "operation", "remove", "gid", gid)

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "gid": gid})
}
