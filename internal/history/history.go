// Package history records downloads that finished relocation to durable
// storage. Once an identifier is here it is reported as saved for the rest
// of the run, even after the engine has forgotten it.
package history

import (
	"sort"
	"sync"
	"time"
)

// Entry is one successfully relocated download.
type Entry struct {
	GID         string    `json:"gid"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Dest        string    `json:"dest"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store is an in-memory history table keyed by identifier, owned by the
// process and threaded through components explicitly. It lives until
// explicit cleanup or process end.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

func (s *Store) Add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.GID] = e
}

func (s *Store) Get(gid string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[gid]

	return e, ok
}

func (s *Store) Has(gid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[gid]

	return ok
}

// All returns entries most recent first.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CompletedAt.After(entries[j].CompletedAt)
	})

	return entries
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
}
