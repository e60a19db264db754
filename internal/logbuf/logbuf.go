// Package logbuf is a bounded in-memory ring of structured log entries that
// backs the logs endpoint. It plugs into slog as a handler so components log
// normally and the ring fills as a side channel, fanned out next to the
// stdout handler.
package logbuf

import (
	"sync"
	"time"
)

// Entry is one captured log record in the shape the remote client expects.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Operation string         `json:"operation"`
	Message   string         `json:"message"`
	GID       string         `json:"gid,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Ring keeps the N most recent entries. Appends never fail and never grow
// beyond capacity; older entries fall off.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}

	return &Ring{entries: make([]Entry, capacity)}
}

func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)

	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the buffered entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])

		return out
	}

	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)

	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		return len(r.entries)
	}

	return r.next
}
