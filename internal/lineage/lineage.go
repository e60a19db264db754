// Package lineage resolves the chain of identifiers the download engine
// assigns to one logical task over its lifetime. Engines reassign the
// identifier mid-flight, typically when metadata resolution finishes and the
// content download starts under a fresh GID. The matching rules here are a
// fixed, ordered list so both the backend and the polling client derive the
// same chain independently.
package lineage

import (
	"slices"
	"strings"

	"github.com/italolelis/cloudleecher/internal/engine"
)

// metadataPrefix is the name the engine gives a magnet's metadata download
// before the real content name is known.
const metadataPrefix = "[METADATA]"

// IsPlaceholder reports whether a display name is still the engine's
// pre-metadata stand-in rather than a content-derived name.
func IsPlaceholder(name string) bool {
	return name == "" || strings.HasPrefix(name, metadataPrefix)
}

// Entry is the identity-relevant projection of one engine download.
type Entry struct {
	GID         string
	InfoHash    string
	BTName      string
	DisplayName string
	FollowedBy  []string
	Following   string
}

// EntryFromStatus projects an engine status into a lineage entry.
func EntryFromStatus(st engine.Status) Entry {
	return Entry{
		GID:         st.GID,
		InfoHash:    st.InfoHash,
		BTName:      st.BTName(),
		DisplayName: st.DisplayName(),
		FollowedBy:  st.FollowedBy,
		Following:   st.Following,
	}
}

// Match is a resolved successor and the rule that produced it.
type Match struct {
	GID  string
	Rule string
}

// The rule order is deliberate: an explicit engine-reported link always
// beats a content fingerprint, which beats a derived-identifier prefix,
// which beats a name match. The name rule only applies while the old task
// never resolved a proper display name, so an unrelated download with a
// coincidentally equal name can never steal a lineage.
type rule struct {
	name  string
	match func(old, cand Entry) bool
}

var rules = []rule{
	{
		name: "explicit",
		match: func(old, cand Entry) bool {
			return slices.Contains(old.FollowedBy, cand.GID) || (cand.Following != "" && cand.Following == old.GID)
		},
	},
	{
		name: "fingerprint",
		match: func(old, cand Entry) bool {
			return old.InfoHash != "" && strings.EqualFold(old.InfoHash, cand.InfoHash)
		},
	},
	{
		name: "prefix",
		match: func(old, cand Entry) bool {
			return len(cand.GID) > len(old.GID) && strings.HasPrefix(cand.GID, old.GID)
		},
	},
	{
		name: "name",
		match: func(old, cand Entry) bool {
			return IsPlaceholder(old.DisplayName) && old.BTName != "" && old.BTName == cand.BTName
		},
	},
}

// Resolver resolves successors within a single polling cycle. Each candidate
// is consumable at most once, so two disappeared identifiers can never adopt
// the same successor.
type Resolver struct {
	claimed map[string]bool
}

func NewResolver() *Resolver {
	return &Resolver{claimed: make(map[string]bool)}
}

// Claim marks a candidate as taken outside the rule engine, e.g. when it was
// matched directly by identifier.
func (r *Resolver) Claim(gid string) {
	r.claimed[gid] = true
}

// Resolve finds at most one successor for old among the candidates. Rules
// are tried strictly in priority order across all candidates; the first hit
// wins and claims the candidate. No match means the old identifier is
// genuinely gone - successors are never guessed.
func (r *Resolver) Resolve(old Entry, candidates []Entry) (Match, bool) {
	for _, rl := range rules {
		for _, cand := range candidates {
			if cand.GID == old.GID || r.claimed[cand.GID] {
				continue
			}

			if rl.match(old, cand) {
				r.claimed[cand.GID] = true

				return Match{GID: cand.GID, Rule: rl.name}, true
			}
		}
	}

	return Match{}, false
}

// Chain is the ordered identifier history of one logical task, oldest first.
// It forms a simple path: every identifier has at most one successor.
type Chain struct {
	gids []string
}

func NewChain(first string) *Chain {
	return &Chain{gids: []string{first}}
}

// Head returns the current identifier.
func (c *Chain) Head() string {
	return c.gids[len(c.gids)-1]
}

// Advance appends a successor identifier to the chain.
func (c *Chain) Advance(gid string) {
	c.gids = append(c.gids, gid)
}

// History returns all identifiers before the current head.
func (c *Chain) History() []string {
	return slices.Clone(c.gids[:len(c.gids)-1])
}

func (c *Chain) Contains(gid string) bool {
	return slices.Contains(c.gids, gid)
}
