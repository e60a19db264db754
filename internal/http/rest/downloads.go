package rest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/italolelis/cloudleecher/internal/logctx"
	"github.com/italolelis/cloudleecher/internal/queue"
	"github.com/zeebo/bencode"
)

const maxTorrentSize = 10 * 1024 * 1024 // 10MB

// Magnet URIs carry tracker lists that make them enormous; logs only need
// enough to recognize the download.
const magnetLogLen = 50

type addMagnetRequest struct {
	Magnet string `json:"magnet" validate:"required,startswith=magnet:"`
}

type addFileRequest struct {
	Torrent string `json:"torrent" validate:"required"`
}

func (h *APIHandler) handleAddMagnet(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req addMagnetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "magnet is required and must be a magnet URI")

		return
	}

	logger.Info("magnet submitted", "operation", "add_magnet", "magnet", truncate(req.Magnet, magnetLogLen))

	gid, err := h.queue.Add(r.Context(), queue.AddRequest{Magnet: req.Magnet})
	if err != nil {
		h.addError(w, r, err)

		return
	}

	h.telemetry.RecordDownloadQueued("magnet")

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "gid": gid})
}

func (h *APIHandler) handleAddFile(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req addFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "torrent is required")

		return
	}

	torrent, err := decodeTorrent(req.Torrent)
	if err != nil {
		logger.Warn("rejected torrent payload", "operation", "add_file", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	logger.Info("torrent file submitted", "operation", "add_file", "size_bytes", len(torrent))

	gid, err := h.queue.Add(r.Context(), queue.AddRequest{Torrent: torrent})
	if err != nil {
		h.addError(w, r, err)

		return
	}

	h.telemetry.RecordDownloadQueued("torrent")

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "gid": gid})
}

func (h *APIHandler) addError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, queue.ErrBusy) {
		writeError(w, http.StatusConflict, "another download is already in progress")

		return
	}

	logctx.LoggerFromContext(r.Context()).Error("failed to queue download", "err", err)
	engineError(w, err)
}

// decodeTorrent turns the base64 payload into raw torrent bytes, enforcing
// the size cap before bencode validation so oversized payloads never get
// parsed.
func decodeTorrent(payload string) ([]byte, error) {
	torrent, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &InvalidPayloadError{
			Field:  "torrent",
			Reason: "invalid base64 encoding",
			Err:    err,
		}
	}

	if len(torrent) > maxTorrentSize {
		return nil, &InvalidPayloadError{
			Field:  "torrent",
			Reason: fmt.Sprintf("size %d bytes exceeds maximum %d bytes", len(torrent), maxTorrentSize),
		}
	}

	if err := validateBencodeStructure(torrent); err != nil {
		return nil, err
	}

	return torrent, nil
}

// validateBencodeStructure validates that data is a proper bencoded torrent.
func validateBencodeStructure(data []byte) error {
	var torrentData interface{}

	if err := bencode.DecodeBytes(data, &torrentData); err != nil {
		return &InvalidPayloadError{
			Field:  "torrent",
			Reason: fmt.Sprintf("invalid bencode structure: %v", err),
			Err:    err,
		}
	}

	dict, ok := torrentData.(map[string]interface{})
	if !ok {
		return &InvalidPayloadError{
			Field:  "torrent",
			Reason: "bencode root must be a dictionary",
		}
	}

	if _, hasInfo := dict["info"]; !hasInfo {
		return &InvalidPayloadError{
			Field:  "torrent",
			Reason: "bencode missing required 'info' dictionary",
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
