package lineage_test

import (
	"testing"

	"github.com/italolelis/cloudleecher/internal/lineage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_RulePriority(t *testing.T) {
	tests := []struct {
		name       string
		old        lineage.Entry
		candidates []lineage.Entry
		wantGID    string
		wantRule   string
	}{
		{
			name: "explicit followedBy beats fingerprint",
			old: lineage.Entry{
				GID:        "aaa",
				InfoHash:   "deadbeef",
				FollowedBy: []string{"bbb"},
			},
			candidates: []lineage.Entry{
				{GID: "ccc", InfoHash: "deadbeef"},
				{GID: "bbb"},
			},
			wantGID:  "bbb",
			wantRule: "explicit",
		},
		{
			name: "explicit following link",
			old:  lineage.Entry{GID: "aaa"},
			candidates: []lineage.Entry{
				{GID: "bbb", Following: "aaa"},
			},
			wantGID:  "bbb",
			wantRule: "explicit",
		},
		{
			name: "fingerprint is case insensitive",
			old:  lineage.Entry{GID: "aaa", InfoHash: "DEADBEEF"},
			candidates: []lineage.Entry{
				{GID: "bbb", InfoHash: "deadbeef"},
			},
			wantGID:  "bbb",
			wantRule: "fingerprint",
		},
		{
			name: "fingerprint beats prefix",
			old:  lineage.Entry{GID: "aaa", InfoHash: "deadbeef"},
			candidates: []lineage.Entry{
				{GID: "aaa000"},
				{GID: "zzz", InfoHash: "deadbeef"},
			},
			wantGID:  "zzz",
			wantRule: "fingerprint",
		},
		{
			name: "prefix extension",
			old:  lineage.Entry{GID: "aaa"},
			candidates: []lineage.Entry{
				{GID: "aaa000"},
			},
			wantGID:  "aaa000",
			wantRule: "prefix",
		},
		{
			name: "name match while old name is still placeholder",
			old: lineage.Entry{
				GID:         "aaa",
				DisplayName: "[METADATA]ubuntu.iso",
				BTName:      "ubuntu.iso",
			},
			candidates: []lineage.Entry{
				{GID: "bbb", BTName: "ubuntu.iso"},
			},
			wantGID:  "bbb",
			wantRule: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := lineage.NewResolver()

			m, ok := r.Resolve(tt.old, tt.candidates)
			require.True(t, ok)
			assert.Equal(t, tt.wantGID, m.GID)
			assert.Equal(t, tt.wantRule, m.Rule)
		})
	}
}

func TestResolve_NoGuessing(t *testing.T) {
	tests := []struct {
		name       string
		old        lineage.Entry
		candidates []lineage.Entry
	}{
		{
			name: "no candidates",
			old:  lineage.Entry{GID: "aaa", InfoHash: "deadbeef"},
		},
		{
			name: "unrelated candidate",
			old:  lineage.Entry{GID: "aaa", InfoHash: "deadbeef"},
			candidates: []lineage.Entry{
				{GID: "bbb", InfoHash: "cafebabe"},
			},
		},
		{
			name: "name match blocked once old name resolved",
			old: lineage.Entry{
				GID:         "aaa",
				DisplayName: "ubuntu.iso",
				BTName:      "ubuntu.iso",
			},
			candidates: []lineage.Entry{
				{GID: "bbb", BTName: "ubuntu.iso"},
			},
		},
		{
			name: "candidate never matches itself",
			old:  lineage.Entry{GID: "aaa", InfoHash: "deadbeef"},
			candidates: []lineage.Entry{
				{GID: "aaa", InfoHash: "deadbeef"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := lineage.NewResolver()

			_, ok := r.Resolve(tt.old, tt.candidates)
			assert.False(t, ok)
		})
	}
}

func TestResolve_CandidateClaimedOnce(t *testing.T) {
	r := lineage.NewResolver()

	candidates := []lineage.Entry{{GID: "new", InfoHash: "deadbeef"}}

	m, ok := r.Resolve(lineage.Entry{GID: "old1", InfoHash: "deadbeef"}, candidates)
	require.True(t, ok)
	assert.Equal(t, "new", m.GID)

	// A second disappeared identifier cannot adopt the same successor.
	_, ok = r.Resolve(lineage.Entry{GID: "old2", InfoHash: "deadbeef"}, candidates)
	assert.False(t, ok)
}

func TestResolve_ExplicitClaim(t *testing.T) {
	r := lineage.NewResolver()
	r.Claim("new")

	_, ok := r.Resolve(lineage.Entry{GID: "old", InfoHash: "deadbeef"},
		[]lineage.Entry{{GID: "new", InfoHash: "deadbeef"}})
	assert.False(t, ok)
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, lineage.IsPlaceholder(""))
	assert.True(t, lineage.IsPlaceholder("[METADATA]ubuntu.iso"))
	assert.False(t, lineage.IsPlaceholder("ubuntu.iso"))
}

func TestChain(t *testing.T) {
	c := lineage.NewChain("aaa")
	c.Advance("bbb")
	c.Advance("ccc")

	assert.Equal(t, "ccc", c.Head())
	assert.Equal(t, []string{"aaa", "bbb"}, c.History())
	assert.True(t, c.Contains("bbb"))
	assert.False(t, c.Contains("ddd"))
}

func TestTracker_ObserveTransition(t *testing.T) {
	tr := lineage.NewTracker()

	// Cycle 1: metadata download appears.
	transitions := tr.Observe([]lineage.Entry{
		{GID: "meta1", InfoHash: "deadbeef", DisplayName: "[METADATA]ubuntu"},
	})
	assert.Empty(t, transitions)

	// Cycle 2: identifier renamed, fingerprint carries over.
	transitions = tr.Observe([]lineage.Entry{
		{GID: "content1", InfoHash: "deadbeef", DisplayName: "ubuntu"},
	})
	require.Len(t, transitions, 1)
	assert.Equal(t, "meta1", transitions[0].From)
	assert.Equal(t, "content1", transitions[0].To)
	assert.Equal(t, "fingerprint", transitions[0].Rule)

	chain, ok := tr.ChainFor("content1")
	require.True(t, ok)
	assert.Equal(t, []string{"meta1", "content1"}, chain)
}

func TestTracker_UnrelatedDownloadNotLinked(t *testing.T) {
	tr := lineage.NewTracker()

	tr.Observe([]lineage.Entry{{GID: "aaa", InfoHash: "deadbeef"}})

	// aaa vanishes and an unrelated download appears in the same cycle.
	transitions := tr.Observe([]lineage.Entry{{GID: "bbb", InfoHash: "cafebabe"}})
	assert.Empty(t, transitions)

	_, ok := tr.ChainFor("aaa")
	assert.False(t, ok)

	chain, ok := tr.ChainFor("bbb")
	require.True(t, ok)
	assert.Equal(t, []string{"bbb"}, chain)
}

func TestTracker_TwoRenamesSameCycle(t *testing.T) {
	tr := lineage.NewTracker()

	tr.Observe([]lineage.Entry{
		{GID: "a1", InfoHash: "hashA"},
		{GID: "b1", InfoHash: "hashB"},
	})

	transitions := tr.Observe([]lineage.Entry{
		{GID: "a2", InfoHash: "hashA"},
		{GID: "b2", InfoHash: "hashB"},
	})
	require.Len(t, transitions, 2)

	byFrom := map[string]string{}
	for _, tran := range transitions {
		byFrom[tran.From] = tran.To
	}

	assert.Equal(t, "a2", byFrom["a1"])
	assert.Equal(t, "b2", byFrom["b1"])
}
