// Package cleanup clears session state: the engine's download registry and
// whatever is left in the staging directory. Durable storage is never
// touched.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/logctx"
)

// PurgeEngine force-removes every download the engine still tracks, live or
// stopped, and then flushes the stopped-results registry. Returns how many
// live downloads were removed.
func PurgeEngine(ctx context.Context, ec engine.Client) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	active, err := ec.TellActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active downloads: %w", err)
	}

	waiting, err := ec.TellWaiting(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list waiting downloads: %w", err)
	}

	removed := 0

	for _, st := range append(active, waiting...) {
		if err := ec.ForceRemove(ctx, st.GID); err != nil && !engine.IsNotFound(err) {
			logger.Error("failed to remove download", "operation", "cleanup", "gid", st.GID, "err", err)

			continue
		}

		removed++
	}

	if err := ec.PurgeResults(ctx); err != nil {
		return removed, fmt.Errorf("failed to purge stopped results: %w", err)
	}

	return removed, nil
}

// PurgeStaleResults removes leftovers from previous engine sessions at
// startup: stopped results and any download the engine restored but that no
// operator asked for this session.
func PurgeStaleResults(ctx context.Context, ec engine.Client) error {
	logger := logctx.LoggerFromContext(ctx)

	n, err := PurgeEngine(ctx, ec)
	if err != nil {
		return err
	}

	if n > 0 {
		logger.Info("purged stale downloads from previous session", "operation", "cleanup", "count", n)
	}

	return nil
}

// ClearStaging deletes every entry inside the staging directory. The
// directory itself stays so the engine can keep writing into it.
func ClearStaging(ctx context.Context, dir string) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read staging dir: %w", err)
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		if err := os.RemoveAll(path); err != nil {
			logger.Error("failed to delete staging entry", "operation", "cleanup", "path", path, "err", err)

			return fmt.Errorf("failed to delete %s: %w", path, err)
		}

		logger.Info("deleted staging entry", "operation", "cleanup", "path", path)
	}

	return nil
}
