// Package suppress holds identifiers the operator removed but the engine may
// still report for a transition window. Suppressed identifiers are filtered
// from every canonical listing and forgotten once the engine stops
// mentioning them.
package suppress

import (
	"sync"
	"time"
)

type Set struct {
	mu   sync.Mutex
	gids map[string]time.Time
}

func NewSet() *Set {
	return &Set{gids: make(map[string]time.Time)}
}

func (s *Set) Add(gid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gids[gid]; !ok {
		s.gids[gid] = time.Now()
	}
}

func (s *Set) Contains(gid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.gids[gid]

	return ok
}

// Prune drops suppressed identifiers that are no longer reported live,
// i.e. the removal has been confirmed.
func (s *Set) Prune(reported map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for gid := range s.gids {
		if !reported[gid] {
			delete(s.gids, gid)
		}
	}
}

func (s *Set) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	gids := make([]string, 0, len(s.gids))
	for gid := range s.gids {
		gids = append(gids, gid)
	}

	return gids
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.gids)
}
