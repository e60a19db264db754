package relocate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/engine/enginetest"
	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/italolelis/cloudleecher/internal/relocate"
	"github.com/italolelis/cloudleecher/internal/status"
	"github.com/italolelis/cloudleecher/internal/suppress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, fake *enginetest.Fake) (*relocate.Pipeline, *history.Store, *suppress.Set, string, string) {
	t.Helper()

	staging := t.TempDir()
	durable := t.TempDir()
	hist := history.NewStore()
	removed := suppress.NewSet()

	p := relocate.NewPipeline(fake, hist, nil, removed, relocate.Config{
		StagingDir:           staging,
		DurableDir:           durable,
		MaxTries:             2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	})

	return p, hist, removed, staging, durable
}

func completeStatus(gid, path string, size int64) engine.Status {
	return engine.Status{
		GID:         gid,
		Status:      engine.StatusComplete,
		TotalLength: size,
		Files:       []engine.File{{Path: path, Length: size}},
	}
}

func TestTick_RelocatesCompletedDownload(t *testing.T) {
	fake := &enginetest.Fake{}
	p, hist, _, staging, durable := newTestPipeline(t, fake)

	source := filepath.Join(staging, "movie.mkv")
	require.NoError(t, os.WriteFile(source, []byte("content"), 0o644))

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("gid1", source, 7)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))

	// Content landed in durable storage, staging entry is gone.
	_, err := os.Stat(filepath.Join(durable, "movie.mkv"))
	require.NoError(t, err)

	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err))

	// Outcome recorded everywhere it should be.
	entry, ok := hist.Get("gid1")
	require.True(t, ok)
	assert.Equal(t, "movie.mkv", entry.Name)
	assert.Equal(t, filepath.Join(durable, "movie.mkv"), entry.Dest)

	r, ok := p.Status("gid1")
	require.True(t, ok)
	assert.Equal(t, relocate.StateSaved, r.State)

	assert.Equal(t, 1, fake.CallCount("RemoveResult"))

	select {
	case e := <-p.OnSaved:
		assert.Equal(t, "gid1", e.GID)
	default:
		t.Fatal("expected a saved event")
	}
}

func TestTick_DirectoryDownloadUsesTopLevelEntry(t *testing.T) {
	fake := &enginetest.Fake{}
	p, hist, _, staging, durable := newTestPipeline(t, fake)

	dir := filepath.Join(staging, "season1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "e01.mkv"), []byte("ep1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "e02.mkv"), []byte("ep2"), 0o644))

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("gid2", filepath.Join(dir, "e01.mkv"), 6)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))

	_, err := os.Stat(filepath.Join(durable, "season1", "e02.mkv"))
	require.NoError(t, err)

	entry, ok := hist.Get("gid2")
	require.True(t, ok)
	assert.Equal(t, "season1", entry.Name)
}

func TestTick_FailureKeepsStagingEntry(t *testing.T) {
	fake := &enginetest.Fake{}
	p, hist, _, staging, _ := newTestPipeline(t, fake)

	// The engine reports a file that was never written.
	missing := filepath.Join(staging, "ghost.bin")

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("gid3", missing, 10)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))

	r, ok := p.Status("gid3")
	require.True(t, ok)
	assert.Equal(t, relocate.StateFailed, r.State)
	assert.NotEmpty(t, r.Error)

	assert.False(t, hist.Has("gid3"))

	select {
	case f := <-p.OnFailed:
		assert.Equal(t, "gid3", f.GID)
	default:
		t.Fatal("expected a failed event")
	}
}

func TestTick_PathOutsideStagingRefused(t *testing.T) {
	fake := &enginetest.Fake{}
	p, _, _, _, _ := newTestPipeline(t, fake)

	outside := filepath.Join(t.TempDir(), "elsewhere.bin")

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("gid4", outside, 10)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))

	r, ok := p.Status("gid4")
	require.True(t, ok)
	assert.Equal(t, relocate.StateFailed, r.State)
}

func TestTick_TerminalOutcomeNotRetried(t *testing.T) {
	fake := &enginetest.Fake{}
	p, _, _, staging, _ := newTestPipeline(t, fake)

	missing := filepath.Join(staging, "ghost.bin")

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("gid5", missing, 10)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))
	require.NoError(t, p.Tick(context.Background()))

	// The second cycle only retries the result removal, not the move.
	assert.Len(t, p.Statuses(), 1)
	assert.Equal(t, 2, fake.CallCount("RemoveResult"))
}

func TestTick_SuppressedIdentifierSkippedAndPruned(t *testing.T) {
	fake := &enginetest.Fake{}
	p, _, removed, staging, _ := newTestPipeline(t, fake)

	source := filepath.Join(staging, "removed.bin")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

	removed.Add("gone")
	removed.Add("still-reported")

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("still-reported", source, 1)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))

	// Suppressed identifiers are never relocated.
	_, ok := p.Status("still-reported")
	assert.False(t, ok)

	// Confirmed-gone identifiers are forgotten, still-reported ones kept.
	assert.False(t, removed.Contains("gone"))
	assert.True(t, removed.Contains("still-reported"))
}

func TestTick_RemovedSavedDownloadStaysHidden(t *testing.T) {
	fake := &enginetest.Fake{}
	p, hist, removed, _, durable := newTestPipeline(t, fake)

	// A download already saved to durable storage, then removed by the
	// operator. The engine no longer reports it at all.
	hist.Add(history.Entry{GID: "g2", Name: "movie.mkv", Dest: filepath.Join(durable, "movie.mkv")})
	removed.Add("g2")

	agg := status.NewAggregator(fake, p, hist, removed)

	require.NoError(t, p.Tick(context.Background()))

	// History still reports it, so the suppression must survive the cycle.
	assert.True(t, removed.Contains("g2"))

	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Stopped, "removed identifier resurfaced as saved")

	// Same holds across further cycles.
	require.NoError(t, p.Tick(context.Background()))
	assert.True(t, removed.Contains("g2"))
}

func TestTick_RemovedMidMoveDownloadStaysHidden(t *testing.T) {
	fake := &enginetest.Fake{}
	p, hist, removed, staging, _ := newTestPipeline(t, fake)

	// A relocation that reached a terminal state, then got removed. Only
	// the pipeline remembers the identifier now.
	missing := filepath.Join(staging, "ghost.bin")

	fake.TellStoppedFunc = func(context.Context) ([]engine.Status, error) {
		return []engine.Status{completeStatus("g3", missing, 10)}, nil
	}

	require.NoError(t, p.Tick(context.Background()))

	r, ok := p.Status("g3")
	require.True(t, ok)
	require.Equal(t, relocate.StateFailed, r.State)

	removed.Add("g3")

	fake.TellStoppedFunc = nil
	require.NoError(t, p.Tick(context.Background()))

	assert.True(t, removed.Contains("g3"))

	agg := status.NewAggregator(fake, p, hist, removed)

	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Stopped, "removed identifier resurfaced as failed")
}

func TestTick_EngineFailureSurfaces(t *testing.T) {
	fake := &enginetest.Fake{
		TellStoppedFunc: func(context.Context) ([]engine.Status, error) {
			return nil, &engine.UnreachableError{}
		},
	}

	p, _, _, _, _ := newTestPipeline(t, fake)

	assert.Error(t, p.Tick(context.Background()))
}
