// Package status assembles the read-only view of every download the operator
// cares about: what the engine reports right now, merged with relocation
// outcomes the engine knows nothing about.
package status

import (
	"context"
	"fmt"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/italolelis/cloudleecher/internal/relocate"
	"github.com/italolelis/cloudleecher/internal/suppress"
	"golang.org/x/sync/errgroup"
)

// Snapshot is one consistent listing. Stopped covers everything past the
// download itself: engine-side errors, downloads mid-relocation, failed
// relocations, and entries already saved to durable storage.
type Snapshot struct {
	Active  []engine.Status `json:"active"`
	Waiting []engine.Status `json:"waiting"`
	Stopped []engine.Status `json:"stopped"`
}

// Aggregator produces snapshots. It only reads: all state changes belong to
// the queue controller and the relocation pipeline.
type Aggregator struct {
	engine  engine.Client
	pipe    *relocate.Pipeline
	hist    *history.Store
	removed *suppress.Set
}

func NewAggregator(ec engine.Client, pipe *relocate.Pipeline, hist *history.Store, removed *suppress.Set) *Aggregator {
	return &Aggregator{
		engine:  ec,
		pipe:    pipe,
		hist:    hist,
		removed: removed,
	}
}

// Snapshot merges the engine's listing with relocation state and history.
// Suppressed identifiers are filtered everywhere, engine-reported "complete"
// entries surface as moving, and saved downloads keep appearing (most recent
// first) long after the engine forgot them.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	var active, waiting, stopped []engine.Status

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		active, err = a.engine.TellActive(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		waiting, err = a.engine.TellWaiting(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		stopped, err = a.engine.TellStopped(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to list downloads: %w", err)
	}

	snap := Snapshot{
		Active:  a.visible(active),
		Waiting: a.visible(waiting),
		Stopped: make([]engine.Status, 0, len(stopped)),
	}

	for _, st := range stopped {
		if a.removed.Contains(st.GID) {
			continue
		}

		// Entries with a recorded relocation outcome are synthesized
		// below from our own state, which outlives the engine's.
		if a.hist.Has(st.GID) {
			continue
		}

		if _, ok := a.pipe.Status(st.GID); ok {
			continue
		}

		if st.Status == engine.StatusComplete {
			st.Status = engine.StatusMoving
		}

		snap.Stopped = append(snap.Stopped, st)
	}

	for _, r := range a.pipe.Statuses() {
		if a.removed.Contains(r.GID) {
			continue
		}

		switch r.State {
		case relocate.StateMoving:
			snap.Stopped = append(snap.Stopped, engine.Status{
				GID:             r.GID,
				Status:          engine.StatusMoving,
				TotalLength:     r.Size,
				CompletedLength: r.Size,
				Name:            r.Name,
			})
		case relocate.StateFailed:
			snap.Stopped = append(snap.Stopped, engine.Status{
				GID:             r.GID,
				Status:          engine.StatusError,
				TotalLength:     r.Size,
				CompletedLength: r.Size,
				Name:            r.Name,
				ErrorMessage:    "move failed: " + r.Error,
			})
		case relocate.StateSaved:
			// Covered by history below.
		}
	}

	for _, e := range a.hist.All() {
		if a.removed.Contains(e.GID) {
			continue
		}

		snap.Stopped = append(snap.Stopped, engine.Status{
			GID:             e.GID,
			Status:          engine.StatusSaved,
			TotalLength:     e.Size,
			CompletedLength: e.Size,
			Name:            e.Name,
		})
	}

	return snap, nil
}

func (a *Aggregator) visible(in []engine.Status) []engine.Status {
	out := make([]engine.Status, 0, len(in))

	for _, st := range in {
		if !a.removed.Contains(st.GID) {
			out = append(out, st)
		}
	}

	return out
}
