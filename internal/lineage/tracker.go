package lineage

import "sync"

// Transition records one observed identifier handoff.
type Transition struct {
	From string
	To   string
	Rule string
}

// Tracker maintains identifier chains across polling cycles on the backend.
// Observe diffs the previously observed identifier set against the current
// one and links disappeared heads to their successors via the shared rule
// list.
type Tracker struct {
	mu     sync.Mutex
	chains map[string]*Chain // keyed by current head GID
	prev   map[string]Entry  // entries observed last cycle
}

func NewTracker() *Tracker {
	return &Tracker{
		chains: make(map[string]*Chain),
		prev:   make(map[string]Entry),
	}
}

// Observe ingests the engine's full listing for one cycle and returns the
// transitions detected. Identifiers that appeared this cycle are successor
// candidates; the ones left unclaimed start fresh chains. Heads that
// vanished without a confident successor stop being tracked - they are
// never force-linked to an unrelated download.
func (t *Tracker) Observe(entries []Entry) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]Entry, len(entries))

	var fresh []Entry

	for _, e := range entries {
		seen[e.GID] = e

		if _, ok := t.prev[e.GID]; !ok {
			fresh = append(fresh, e)
		}
	}

	resolver := NewResolver()

	var transitions []Transition

	for gid, old := range t.prev {
		if _, stillLive := seen[gid]; stillLive {
			continue
		}

		m, ok := resolver.Resolve(old, fresh)
		if !ok {
			continue
		}

		chain, tracked := t.chains[gid]
		if !tracked {
			chain = NewChain(gid)
		}

		chain.Advance(m.GID)
		delete(t.chains, gid)
		t.chains[m.GID] = chain

		transitions = append(transitions, Transition{From: gid, To: m.GID, Rule: m.Rule})
	}

	for _, e := range fresh {
		if _, ok := t.chains[e.GID]; !ok {
			t.chains[e.GID] = NewChain(e.GID)
		}
	}

	t.prev = seen

	return transitions
}

// ChainFor returns the full identifier history, oldest first, for a current
// head GID.
func (t *Tracker) ChainFor(gid string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	chain, ok := t.chains[gid]
	if !ok {
		return nil, false
	}

	return append(chain.History(), chain.Head()), true
}
