package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/lineage"
	"github.com/italolelis/cloudleecher/internal/task"
)

// Reconciler folds successive status snapshots into a stable task list. A
// task keeps its identity across engine identifier renames: snapshots are
// matched first by identifier, then through the shared lineage rules.
type Reconciler struct {
	api      *Client
	interval time.Duration

	// grace is how long a live task may be absent from snapshots before it
	// is declared lost. Engines drop an identifier for a poll or two while
	// renaming it; reacting instantly would flap.
	grace time.Duration

	now func() time.Time

	mu           sync.Mutex
	tasks        map[string]*task.Task
	lastSeen     map[string]engine.Status
	missingSince map[string]time.Time
	suppressed   map[string]bool
}

func NewReconciler(api *Client, interval, grace time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	if grace <= 0 {
		grace = 10 * time.Second
	}

	return &Reconciler{
		api:          api,
		interval:     interval,
		grace:        grace,
		now:          time.Now,
		tasks:        make(map[string]*task.Task),
		lastSeen:     make(map[string]engine.Status),
		missingSince: make(map[string]time.Time),
		suppressed:   make(map[string]bool),
	}
}

// Run polls until the context is cancelled. Transient failures back off
// exponentially and recover on the next success; a rejected API key stops
// polling immediately.
func (r *Reconciler) Run(ctx context.Context) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.interval
	expo.MaxInterval = time.Minute

	wait := r.interval

	for {
		err := r.Tick(ctx)

		switch {
		case errors.Is(err, ErrUnauthorized):
			return err
		case err != nil:
			wait = expo.NextBackOff()

			slog.Warn("poll failed, backing off", "retry_in", wait, "err", err)
		default:
			expo.Reset()

			wait = r.interval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tick fetches one snapshot and reconciles it into the task list.
func (r *Reconciler) Tick(ctx context.Context) error {
	snap, err := r.api.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	all := make([]engine.Status, 0, len(snap.Active)+len(snap.Waiting)+len(snap.Stopped))
	all = append(all, snap.Active...)
	all = append(all, snap.Waiting...)
	all = append(all, snap.Stopped...)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	reported := make(map[string]bool, len(all))
	for _, st := range all {
		reported[st.GID] = true
	}

	// Optimistic removals stay hidden only while the server still reports
	// them; once confirmed gone they are forgotten.
	for gid := range r.suppressed {
		if !reported[gid] {
			delete(r.suppressed, gid)

			if t, ok := r.tasks[gid]; ok && t.Phase == task.PhaseRemoved {
				delete(r.tasks, gid)
				delete(r.lastSeen, gid)
			}
		}
	}

	resolver := lineage.NewResolver()
	updated := make(map[string]bool, len(r.tasks))

	var candidates []engine.Status

	for _, st := range all {
		if r.suppressed[st.GID] {
			continue
		}

		if t, ok := r.tasks[st.GID]; ok {
			t.Apply(st, now)
			r.lastSeen[st.GID] = st
			resolver.Claim(st.GID)
			updated[st.GID] = true

			delete(r.missingSince, st.GID)

			continue
		}

		candidates = append(candidates, st)
	}

	candEntries := make([]lineage.Entry, 0, len(candidates))
	for _, st := range candidates {
		candEntries = append(candEntries, lineage.EntryFromStatus(st))
	}

	// Orphaned tasks get one chance per cycle to follow their identifier
	// through the shared lineage rules. Resolution order is made
	// deterministic by sorting.
	orphans := make([]string, 0, len(r.tasks))

	for gid := range r.tasks {
		if !updated[gid] && !r.suppressed[gid] {
			orphans = append(orphans, gid)
		}
	}

	sort.Strings(orphans)

	adopted := make(map[string]bool)

	for _, gid := range orphans {
		t := r.tasks[gid]

		old, ok := r.lastSeen[gid]
		if !ok {
			continue
		}

		m, matched := resolver.Resolve(lineage.EntryFromStatus(old), candEntries)
		if !matched {
			continue
		}

		for _, st := range candidates {
			if st.GID != m.GID {
				continue
			}

			t.Adopt(st, now)

			delete(r.tasks, gid)
			delete(r.lastSeen, gid)
			delete(r.missingSince, gid)

			r.tasks[st.GID] = t
			r.lastSeen[st.GID] = st
			adopted[st.GID] = true
			updated[st.GID] = true

			break
		}
	}

	// Whatever no task claimed is a genuinely new download.
	for _, st := range candidates {
		if adopted[st.GID] {
			continue
		}

		r.tasks[st.GID] = task.New(st, now)
		r.lastSeen[st.GID] = st
	}

	// Tasks still unaccounted for: live ones get the grace window before
	// being declared lost, finished ones keep their final state.
	for gid, t := range r.tasks {
		if updated[gid] || reported[gid] || r.suppressed[gid] {
			continue
		}

		if !t.Phase.IsLive() && t.Phase != task.PhasePaused {
			continue
		}

		since, ok := r.missingSince[gid]
		if !ok {
			r.missingSince[gid] = now

			continue
		}

		if now.Sub(since) >= r.grace {
			t.Phase = task.PhaseError
			t.ErrorCode = task.ErrorCodeLost
			t.ErrorMessage = "download disappeared from the engine"
			t.UpdatedAt = now

			delete(r.missingSince, gid)
		}
	}

	return nil
}

// Tasks returns the reconciled task list, oldest first.
func (r *Reconciler) Tasks() []task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].GID < out[j].GID
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// Remove removes a task optimistically: the local list updates immediately
// and the server call happens in the background. The identifier stays
// suppressed until a snapshot confirms the server stopped reporting it.
func (r *Reconciler) Remove(ctx context.Context, gid string) {
	r.mu.Lock()

	if t, ok := r.tasks[gid]; ok {
		t.Phase = task.PhaseRemoved
		t.UpdatedAt = r.now()
	}

	r.suppressed[gid] = true
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if err := r.api.Remove(ctx, gid); err != nil {
			slog.Warn("server-side remove failed", "gid", gid, "err", err)
		}
	}()
}
