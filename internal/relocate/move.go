package relocate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/cloudleecher/internal/logctx"
	"github.com/italolelis/cloudleecher/internal/relocate/progress"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm = 0o755

	// How often a cross-boundary copy reports progress.
	progressInterval = 100 * 1024 * 1024 // 100MB
)

const collisionStamp = "20060102_150405"

// destinationFor picks the target path inside durable storage. Existing
// content is never overwritten: on a name collision the new entry gets a
// timestamp suffix before the extension.
func destinationFor(durableDir, name string, now time.Time) string {
	dest := filepath.Join(durableDir, name)
	if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
		return dest
	}

	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]

	return filepath.Join(durableDir, fmt.Sprintf("%s_%s%s", base, now.Format(collisionStamp), ext))
}

// moveEntry relocates one staging entry (file or directory) into durable
// storage and returns the final destination path. Same-volume moves are a
// rename; crossing a storage boundary falls back to copy, verify, then
// delete. On any failure the staging entry is left untouched.
func moveEntry(ctx context.Context, source, durableDir string, maxParallel int, now time.Time) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.MkdirAll(durableDir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create durable dir: %w", err)
	}

	dest := destinationFor(durableDir, filepath.Base(source), now)

	err := os.Rename(source, dest)
	if err == nil {
		return dest, nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("failed to move %s: %w", source, err)
	}

	logger.Debug("crossing storage boundary, falling back to copy", "source", source, "dest", dest)

	if err := copyTree(ctx, source, dest, maxParallel); err != nil {
		// Leave staging intact for manual recovery; only the partial
		// destination is discarded.
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			logger.Error("failed to drop partial destination", "dest", dest, "err", rmErr)
		}

		return "", err
	}

	if err := os.RemoveAll(source); err != nil {
		return "", fmt.Errorf("copied but failed to delete staging entry: %w", err)
	}

	return dest, nil
}

// copyTree copies a file or directory tree, verifying sizes as it goes.
func copyTree(ctx context.Context, source, dest string, maxParallel int) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}

	if !info.IsDir() {
		return copyFile(ctx, source, dest, info.Size())
	}

	type job struct {
		src, dst string
		size     int64
	}

	var jobs []job

	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, dirPerm)
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		jobs = append(jobs, job{src: path, dst: target, size: fi.Size()})

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk source tree: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for _, j := range jobs {
		g.Go(func() error {
			return copyFile(ctx, j.src, j.dst, j.size)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to copy tree: %w", err)
	}

	return nil
}

func copyFile(ctx context.Context, source, dest string, size int64) error {
	logger := logctx.LoggerFromContext(ctx)

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	logger.Info("copying to durable storage", "file", dest, "file_size", humanize.Bytes(uint64(size)))

	pr := progress.NewReader(in, size, progressInterval, func(written, total int64) {
		logger.Debug("copy progress",
			"file", dest,
			"copied", humanize.Bytes(uint64(written)),
			"total", humanize.Bytes(uint64(total)))
	})

	written, err := io.Copy(out, pr)
	if err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync destination file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch after copy: wrote %d, expected %d", written, size)
	}

	return nil
}
