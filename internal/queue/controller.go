// Package queue enforces the single-active-task rule: one operator, one
// engine, one download in flight at a time.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/logctx"
	"github.com/italolelis/cloudleecher/internal/suppress"
	"golang.org/x/sync/errgroup"
)

// ErrBusy rejects an add while another download occupies the slot. Not
// retried; the operator waits or removes the current task.
var ErrBusy = errors.New("another download is already in progress")

// AddRequest carries exactly one of a magnet URI or a raw torrent payload.
type AddRequest struct {
	Magnet  string
	Torrent []byte
}

type Controller struct {
	engine  engine.Client
	removed *suppress.Set

	// sem is the critical section around check-and-insert. A channel
	// instead of a mutex so acquisition respects context cancellation.
	sem chan struct{}
}

func NewController(ec engine.Client, removed *suppress.Set) *Controller {
	return &Controller{
		engine:  ec,
		removed: removed,
		sem:     make(chan struct{}, 1),
	}
}

// Add submits a new download if and only if no live task exists. The busy
// check and the engine insert happen under one critical section, so two
// concurrent adds can never both pass the check. Suppressed identifiers
// still reported by the engine do not count against the slot.
func (c *Controller) Add(ctx context.Context, req AddRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	live, err := c.liveCount(ctx)
	if err != nil {
		return "", err
	}

	if live > 0 {
		logctx.LoggerFromContext(ctx).Warn("rejected add, queue slot taken",
			"operation", "queue_add", "live_count", live)

		return "", ErrBusy
	}

	if req.Magnet != "" {
		gid, err := c.engine.AddURI(ctx, req.Magnet)
		if err != nil {
			return "", fmt.Errorf("failed to queue magnet: %w", err)
		}

		return gid, nil
	}

	gid, err := c.engine.AddTorrent(ctx, req.Torrent)
	if err != nil {
		return "", fmt.Errorf("failed to queue torrent: %w", err)
	}

	return gid, nil
}

func (c *Controller) liveCount(ctx context.Context) (int, error) {
	var active, waiting []engine.Status

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		active, err = c.engine.TellActive(ctx)

		return err
	})
	g.Go(func() error {
		var err error
		waiting, err = c.engine.TellWaiting(ctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to check queue occupancy: %w", err)
	}

	count := 0

	for _, st := range append(active, waiting...) {
		if !c.removed.Contains(st.GID) {
			count++
		}
	}

	return count, nil
}
