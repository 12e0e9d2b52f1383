// Package cleanup removes files left behind by previous bundle installs.
package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/italolelis/bundle_installer/internal/logctx"
)

// PruneImageDirs deletes every directory directly under root except keep.
// Each install writes its images into a fresh directory, so anything else is
// left over from an earlier install. Plain files under root are left alone.
func PruneImageDirs(ctx context.Context, root, keep string) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		logger.Error("failed to list images directory", "dir", root, "err", err)

		return err
	}

	var errs []error

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == keep {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		dir := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			logger.Error("failed to delete stale images directory", "dir", dir, "err", err)

			errs = append(errs, err)

			continue
		}

		logger.Info("deleted stale images directory", "dir", dir)
	}

	return errors.Join(errs...)
}

// ResetDir removes dir with everything in it and recreates it empty.
func ResetDir(ctx context.Context, dir string) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := os.RemoveAll(dir); err != nil {
		logger.Error("failed to remove directory", "dir", dir, "err", err)

		return err
	}

	return os.MkdirAll(dir, 0755)
}
