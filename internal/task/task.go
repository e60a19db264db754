// Package task is the client-side model of one logical download across its
// whole lifecycle, identifier renames included.
package task

import (
	"time"

	"github.com/italolelis/cloudleecher/internal/engine"
)

// Phase is where a task stands in its lifecycle.
type Phase string

const (
	PhaseResolving Phase = "resolving"
	PhaseWaiting   Phase = "waiting"
	PhaseActive    Phase = "active"
	PhasePaused    Phase = "paused"
	PhaseMoving    Phase = "moving"
	PhaseSaved     Phase = "saved"
	PhaseError     Phase = "error"
	PhaseRemoved   Phase = "removed"
)

// ErrorCodeLost marks a task whose identifier vanished from the engine with
// no confident successor. The task is kept and labeled instead of deleted:
// its content may already sit in durable storage.
const ErrorCodeLost = "lost"

// IsLive reports whether the phase counts against the single-slot queue.
func (p Phase) IsLive() bool {
	return p == PhaseResolving || p == PhaseWaiting || p == PhaseActive
}

func (p Phase) IsTerminal() bool {
	return p == PhaseSaved || p == PhaseError || p == PhaseRemoved
}

// PhaseFromStatus maps an engine-reported status to a phase. An active
// download with no known total length is still resolving metadata.
func PhaseFromStatus(status string, totalLength int64) Phase {
	switch status {
	case engine.StatusActive:
		if totalLength == 0 {
			return PhaseResolving
		}

		return PhaseActive
	case engine.StatusWaiting:
		return PhaseWaiting
	case engine.StatusPaused:
		return PhasePaused
	case engine.StatusComplete, engine.StatusMoving:
		return PhaseMoving
	case engine.StatusSaved:
		return PhaseSaved
	case engine.StatusRemoved:
		return PhaseRemoved
	default:
		return PhaseError
	}
}

// Task is one logical download as the client sees it.
type Task struct {
	GID             string    `json:"gid"`
	Lineage         []string  `json:"lineage,omitempty"` // prior identifiers, oldest first
	Phase           Phase     `json:"phase"`
	Name            string    `json:"name"`
	InfoHash        string    `json:"infoHash,omitempty"`
	TotalLength     int64     `json:"totalLength"`
	CompletedLength int64     `json:"completedLength"`
	DownloadSpeed   int64     `json:"downloadSpeed"`
	NumSeeders      int64     `json:"numSeeders"`
	Connections     int64     `json:"connections"`
	ErrorCode       string    `json:"errorCode,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// New builds a task from a snapshot entry first seen at now.
func New(st engine.Status, now time.Time) *Task {
	t := &Task{
		GID:       st.GID,
		CreatedAt: now,
	}
	t.Apply(st, now)

	return t
}

// Apply copies the server-reported fields onto the task. The creation
// timestamp is never touched; it anchors the task's identity across
// identifier renames.
func (t *Task) Apply(st engine.Status, now time.Time) {
	t.Phase = PhaseFromStatus(st.Status, st.TotalLength)
	t.Name = st.DisplayName()
	t.InfoHash = st.InfoHash
	t.TotalLength = st.TotalLength
	t.CompletedLength = st.CompletedLength
	t.DownloadSpeed = st.DownloadSpeed
	t.NumSeeders = st.NumSeeders
	t.Connections = st.Connections
	t.ErrorCode = st.ErrorCode
	t.ErrorMessage = st.ErrorMessage
	t.UpdatedAt = now
}

// Adopt moves the task to a successor identifier and applies the successor's
// fields. Completed bytes never go backwards across a lineage transition:
// the successor restarts its own counter, but from the operator's view it is
// the same task that already made progress.
func (t *Task) Adopt(st engine.Status, now time.Time) {
	prevCompleted := t.CompletedLength

	t.Lineage = append(t.Lineage, t.GID)
	t.GID = st.GID
	t.Apply(st, now)

	if t.CompletedLength < prevCompleted {
		t.CompletedLength = prevCompleted
	}
}
