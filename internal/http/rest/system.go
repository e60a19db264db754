package rest

import (
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/cloudleecher/internal/cleanup"
	"github.com/italolelis/cloudleecher/internal/logbuf"
	"github.com/italolelis/cloudleecher/internal/logctx"
)

func (h *APIHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.aggregator.Snapshot(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to build status snapshot", "err", err)
		engineError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]logbuf.Entry{"logs": h.ring.Entries()})
}

// handleCleanup resets the session: every engine download is force-removed,
// the staging directory is emptied, and the saved history is cleared.
// Durable storage is untouched.
func (h *APIHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	removed, err := cleanup.PurgeEngine(r.Context(), h.engine)
	if err != nil {
		logger.Error("cleanup failed", "operation", "cleanup", "err", err)
		engineError(w, err)

		return
	}

	if err := cleanup.ClearStaging(r.Context(), h.stagingDir); err != nil {
		logger.Error("failed to clear staging dir", "operation", "cleanup", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.hist.Clear()

	logger.Info("session cleaned up", "operation", "cleanup", "removed", removed)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleaned",
		"removed": removed,
	})
}

// driveInfo is the durable storage capacity report. total/used/free are
// plain byte counts; the humanized renderings ride along under their own
// keys.
type driveInfo struct {
	Total       uint64 `json:"total"`
	Used        uint64 `json:"used"`
	Free        uint64 `json:"free"`
	TotalHuman  string `json:"total_human"`
	UsedHuman   string `json:"used_human"`
	FreeHuman   string `json:"free_human"`
	UsedPercent int    `json:"used_percent"`
}

// driveInfoCache caches statfs results. The durable mount is typically a
// network filesystem, so hitting it on every poll is wasteful.
type driveInfoCache struct {
	dir string
	ttl time.Duration

	mu        sync.Mutex
	cached    driveInfo
	fetchedAt time.Time
}

func newDriveInfoCache(dir string, ttl time.Duration) *driveInfoCache {
	return &driveInfoCache{dir: dir, ttl: ttl}
}

func (c *driveInfoCache) get() (driveInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.dir, &stat); err != nil {
		return driveInfo{}, err
	}

	bsize := uint64(stat.Bsize)
	total := stat.Blocks * bsize
	free := stat.Bavail * bsize
	used := total - free

	info := driveInfo{
		Total:      total,
		Used:       used,
		Free:       free,
		TotalHuman: humanize.IBytes(total),
		UsedHuman:  humanize.IBytes(used),
		FreeHuman:  humanize.IBytes(free),
	}

	if total > 0 {
		info.UsedPercent = int(used * 100 / total)
	}

	c.cached = info
	c.fetchedAt = time.Now()

	return info, nil
}

func (h *APIHandler) handleDriveInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.driveInfo.get()
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to stat durable storage", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to stat durable storage")

		return
	}

	writeJSON(w, http.StatusOK, info)
}
