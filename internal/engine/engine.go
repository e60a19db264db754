package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Download states as reported by the engine. The aggregator layers two more
// on top of these for tasks that already left the engine: "moving" and "saved".
const (
	StatusActive   = "active"
	StatusWaiting  = "waiting"
	StatusPaused   = "paused"
	StatusComplete = "complete"
	StatusError    = "error"
	StatusRemoved  = "removed"
	StatusMoving   = "moving"
	StatusSaved    = "saved"
)

// File is a single file inside a download.
type File struct {
	Path            string `json:"path"`
	Length          int64  `json:"length"`
	CompletedLength int64  `json:"completedLength"`
}

// BitTorrent carries the torrent metadata subset the engine exposes once
// metadata resolution finishes.
type BitTorrent struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
}

// Status is one download as reported by the engine. FollowedBy and Following
// are the engine's explicit lineage signals: when a metadata download spawns
// the actual content download, the old entry names its successor in
// FollowedBy and the new one points back via Following.
type Status struct {
	GID             string      `json:"gid"`
	Status          string      `json:"status"`
	TotalLength     int64       `json:"totalLength"`
	CompletedLength int64       `json:"completedLength"`
	DownloadSpeed   int64       `json:"downloadSpeed"`
	UploadSpeed     int64       `json:"uploadSpeed"`
	Dir             string      `json:"dir,omitempty"`
	InfoHash        string      `json:"infoHash"`
	NumSeeders      int64       `json:"numSeeders"`
	Connections     int64       `json:"connections"`
	ErrorCode       string      `json:"errorCode"`
	ErrorMessage    string      `json:"errorMessage"`
	FollowedBy      []string    `json:"followedBy,omitempty"`
	Following       string      `json:"following,omitempty"`
	BitTorrent      *BitTorrent `json:"bittorrent,omitempty"`
	Name            string      `json:"name,omitempty"`
	Files           []File      `json:"files"`
}

// BTName returns the torrent-announced name, or "" while metadata is
// still unresolved.
func (s Status) BTName() string {
	if s.BitTorrent == nil {
		return ""
	}

	return s.BitTorrent.Info.Name
}

// DisplayName derives the best name currently known for the download:
// the torrent name once resolved, otherwise the first file's base name,
// otherwise the identifier itself.
func (s Status) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}

	if name := s.BTName(); name != "" {
		return name
	}

	if len(s.Files) > 0 && s.Files[0].Path != "" {
		return filepath.Base(s.Files[0].Path)
	}

	return s.GID
}

// Client is the narrow command/query interface to the external download
// engine. The engine runs independently; everything here is a remote call
// and must honor the context deadline.
type Client interface {
	AddURI(ctx context.Context, uri string) (string, error)
	AddTorrent(ctx context.Context, torrent []byte) (string, error)
	TellActive(ctx context.Context) ([]Status, error)
	TellWaiting(ctx context.Context) ([]Status, error)
	TellStopped(ctx context.Context) ([]Status, error)
	TellStatus(ctx context.Context, gid string) (Status, error)
	Pause(ctx context.Context, gid string) error
	Unpause(ctx context.Context, gid string) error
	ForceRemove(ctx context.Context, gid string) error
	RemoveResult(ctx context.Context, gid string) error
	PurgeResults(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// RPCError is a fault returned by the engine's RPC endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("engine rpc fault %d: %s", e.Code, e.Message)
}

// UnreachableError wraps transport-level failures talking to the engine.
// Callers retry these with backoff; they never indicate a bad request.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("engine unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is the engine telling us a GID does not
// exist. Removing an already-gone download is treated as success by callers,
// so stale identifiers from previous sessions never surface as errors.
func IsNotFound(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}

	return strings.Contains(strings.ToLower(rpcErr.Message), "not found")
}
