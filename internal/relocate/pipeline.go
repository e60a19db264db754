// Package relocate watches the engine for completed downloads and moves them
// from the staging directory into durable storage. Relocation outcomes are
// tracked per identifier so the status surface can keep reporting a download
// after the engine has forgotten it.
package relocate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/history"
	"github.com/italolelis/cloudleecher/internal/lineage"
	"github.com/italolelis/cloudleecher/internal/logctx"
	"github.com/italolelis/cloudleecher/internal/suppress"
	"golang.org/x/sync/errgroup"
)

// State is where a relocation stands.
type State string

const (
	StateMoving State = "moving"
	StateSaved  State = "saved"
	StateFailed State = "failed"
)

// Relocation is the recorded outcome of moving one download.
type Relocation struct {
	GID       string    `json:"gid"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	State     State     `json:"state"`
	Dest      string    `json:"dest,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Archive persists completed downloads beyond process lifetime.
type Archive interface {
	Record(ctx context.Context, e history.Entry) error
}

// MetricsRecorder receives relocation outcomes.
type MetricsRecorder interface {
	RecordRelocation(status string, duration time.Duration)
}

type Config struct {
	StagingDir           string
	DurableDir           string
	Interval             time.Duration
	MaxTries             uint
	MaxParallel          int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	Metrics              MetricsRecorder
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}

	if c.MaxTries == 0 {
		c.MaxTries = 5
	}

	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}

	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = time.Second
	}

	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 30 * time.Second
	}
}

// Pipeline runs the monitor loop. One cycle lists the engine's downloads,
// records identifier handoffs, prunes confirmed removals, and relocates
// whatever finished since the last cycle. Cycles are synchronous, so they
// never overlap no matter how slow a move is.
type Pipeline struct {
	engine  engine.Client
	hist    *history.Store
	archive Archive
	removed *suppress.Set
	tracker *lineage.Tracker
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	statuses map[string]*Relocation

	// OnSaved and OnFailed announce terminal outcomes to interested
	// consumers (notifications). Sends never block a cycle: if nobody
	// listens, events are dropped.
	OnSaved  chan history.Entry
	OnFailed chan Relocation
}

func NewPipeline(ec engine.Client, hist *history.Store, archive Archive, removed *suppress.Set, cfg Config) *Pipeline {
	cfg.applyDefaults()

	return &Pipeline{
		engine:   ec,
		hist:     hist,
		archive:  archive,
		removed:  removed,
		tracker:  lineage.NewTracker(),
		cfg:      cfg,
		now:      time.Now,
		statuses: make(map[string]*Relocation),
		OnSaved:  make(chan history.Entry, 16),
		OnFailed: make(chan Relocation, 16),
	}
}

// Run executes cycles until the context is cancelled. The first cycle runs
// immediately so a restart picks up already-finished downloads without
// waiting a full interval.
func (p *Pipeline) Run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.Tick(ctx); err != nil {
			logger.Error("monitor cycle failed", "operation", "relocate_tick", "err", err)
		}

		select {
		case <-ctx.Done():
			logger.Info("stopping relocation pipeline")

			return
		case <-ticker.C:
		}
	}
}

// Tick runs one monitor cycle.
func (p *Pipeline) Tick(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	var active, waiting, stopped []engine.Status

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		active, err = p.engine.TellActive(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		waiting, err = p.engine.TellWaiting(gctx)

		return err
	})
	g.Go(func() error {
		var err error
		stopped, err = p.engine.TellStopped(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to list downloads: %w", err)
	}

	all := make([]engine.Status, 0, len(active)+len(waiting)+len(stopped))
	all = append(all, active...)
	all = append(all, waiting...)
	all = append(all, stopped...)

	entries := make([]lineage.Entry, 0, len(all))
	reported := make(map[string]bool, len(all))

	for _, st := range all {
		entries = append(entries, lineage.EntryFromStatus(st))
		reported[st.GID] = true
	}

	for _, tr := range p.tracker.Observe(entries) {
		logger.Info("identifier handoff",
			"operation", "gid_transition",
			"gid", tr.From,
			"successor", tr.To,
			"rule", tr.Rule)
	}

	// The status surface keeps reporting a download through history and
	// recorded relocation outcomes long after the engine forgot it. Those
	// identifiers must stay suppressed, or a removed download would
	// resurface as saved one cycle after the engine dropped it.
	for _, e := range p.hist.All() {
		reported[e.GID] = true
	}

	for _, r := range p.Statuses() {
		reported[r.GID] = true
	}

	p.removed.Prune(reported)

	for _, st := range stopped {
		if st.Status != engine.StatusComplete {
			continue
		}

		if p.removed.Contains(st.GID) {
			continue
		}

		if p.hist.Has(st.GID) || p.isTerminal(st.GID) {
			// Terminal outcome already recorded; keep trying to drop
			// the stale engine entry until it stops being reported.
			p.removeResult(ctx, st.GID)

			continue
		}

		p.relocate(ctx, st)
	}

	return nil
}

// Lineage returns the full identifier history, oldest first, for a current
// engine identifier, if one is tracked.
func (p *Pipeline) Lineage(gid string) ([]string, bool) {
	return p.tracker.ChainFor(gid)
}

// Statuses returns all recorded relocations, most recently started first.
func (p *Pipeline) Statuses() []Relocation {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Relocation, 0, len(p.statuses))
	for _, r := range p.statuses {
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	return out
}

func (p *Pipeline) Status(gid string) (Relocation, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.statuses[gid]
	if !ok {
		return Relocation{}, false
	}

	return *r, true
}

func (p *Pipeline) relocate(ctx context.Context, st engine.Status) {
	logger := logctx.LoggerFromContext(ctx)

	gid := st.GID
	started := p.now()

	source, err := p.sourceFor(st)
	if err != nil {
		logger.Error("cannot determine staging entry", "operation", "relocate", "gid", gid, "err", err)
		p.markFailed(gid, st.DisplayName(), st.TotalLength, err)
		p.removeResult(ctx, gid)

		return
	}

	name := filepath.Base(source)

	p.set(&Relocation{
		GID:       gid,
		Name:      name,
		Size:      st.TotalLength,
		State:     StateMoving,
		StartedAt: p.now(),
	})

	logger.Info("relocating download", "operation", "relocate", "gid", gid, "name", name)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.cfg.RetryInitialInterval
	expo.MaxInterval = p.cfg.RetryMaxInterval

	dest, err := backoff.Retry(ctx,
		func() (string, error) {
			return moveEntry(ctx, source, p.cfg.DurableDir, p.cfg.MaxParallel, p.now())
		},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(p.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("relocation attempt failed, retrying",
				"operation", "relocate", "gid", gid, "retry_in", next, "err", err)
		}),
	)
	if err != nil {
		logger.Error("relocation failed, staging entry kept", "operation", "relocate", "gid", gid, "err", err)
		p.markFailed(gid, name, st.TotalLength, err)
		p.record("failed", started)
		p.removeResult(ctx, gid)

		return
	}

	entry := history.Entry{
		GID:         gid,
		Name:        name,
		Size:        st.TotalLength,
		Dest:        dest,
		CompletedAt: p.now(),
	}

	p.hist.Add(entry)

	if p.archive != nil {
		if err := p.archive.Record(ctx, entry); err != nil {
			logger.Error("failed to archive completion", "operation", "relocate", "gid", gid, "err", err)
		}
	}

	p.set(&Relocation{
		GID:       gid,
		Name:      name,
		Size:      st.TotalLength,
		State:     StateSaved,
		Dest:      dest,
		StartedAt: p.now(),
	})

	select {
	case p.OnSaved <- entry:
	default:
	}

	logger.Info("download saved", "operation", "relocate", "gid", gid, "dest", dest)

	p.record("saved", started)
	p.removeResult(ctx, gid)
}

func (p *Pipeline) record(status string, started time.Time) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordRelocation(status, p.now().Sub(started))
	}
}

// sourceFor resolves the top-level staging entry a download landed in. Paths
// outside the staging directory are refused outright; deleting or moving
// anything else is never worth guessing about.
func (p *Pipeline) sourceFor(st engine.Status) (string, error) {
	if len(st.Files) == 0 || st.Files[0].Path == "" {
		return "", fmt.Errorf("engine reported no files for %s", st.GID)
	}

	rel, err := filepath.Rel(p.cfg.StagingDir, st.Files[0].Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("download path %s is outside the staging dir", st.Files[0].Path)
	}

	top := rel
	if i := strings.IndexRune(rel, filepath.Separator); i >= 0 {
		top = rel[:i]
	}

	return filepath.Join(p.cfg.StagingDir, top), nil
}

func (p *Pipeline) markFailed(gid, name string, size int64, cause error) {
	r := &Relocation{
		GID:       gid,
		Name:      name,
		Size:      size,
		State:     StateFailed,
		Error:     cause.Error(),
		StartedAt: p.now(),
	}

	p.set(r)

	select {
	case p.OnFailed <- *r:
	default:
	}
}

func (p *Pipeline) set(r *Relocation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.statuses[r.GID] = r
}

func (p *Pipeline) isTerminal(gid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.statuses[gid]

	return ok && r.State != StateMoving
}

// removeResult drops the engine's stopped entry once the relocation outcome
// is recorded on our side. Best effort: a failure here just means the next
// cycle tries again.
func (p *Pipeline) removeResult(ctx context.Context, gid string) {
	if err := p.engine.RemoveResult(ctx, gid); err != nil && !engine.IsNotFound(err) {
		logctx.LoggerFromContext(ctx).Warn("failed to drop engine result",
			"operation", "relocate", "gid", gid, "err", err)
	}
}
