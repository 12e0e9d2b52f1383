package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/recipe"
	"github.com/italolelis/bundle_installer/internal/transfer"
	"golang.org/x/sync/errgroup"
)

const defaultImageWorkers = 4

// copyImages copies every image referenced by records from images/ in the
// archive into destDir and returns the resulting path per record. Records
// without an image, with an unsafe file name, or whose image is missing from
// the archive get a nil path.
func copyImages(ctx context.Context, fsys fs.FS, records []recipe.Record, destDir string, workers int) ([]*string, error) {
	logger := logctx.LoggerFromContext(ctx)

	if workers <= 0 {
		workers = defaultImageWorkers
	}

	// Several records may share one image, copy each file once.
	copied := make(map[string]*string)

	for _, rec := range records {
		name := rec.ImageFileName
		if name == "" {
			continue
		}

		if !safeImageName(name) {
			logger.Warn("skipping image with unsafe name", "image", name, "title", rec.Title)

			continue
		}

		copied[name] = nil
	}

	if len(copied) > 0 {
		if err := os.MkdirAll(destDir, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create images directory: %w", err)
		}
	}

	names := make([]string, 0, len(copied))
	for name := range copied {
		names = append(names, name)
	}

	results := make([]*string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, name := range names {
		g.Go(func() error {
			target := filepath.Join(destDir, name)

			n, err := copyEntry(gctx, fsys, path.Join(imagesDir, name), target)
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("image referenced by manifest is missing from bundle", "image", name)

				return nil
			}

			if err != nil {
				return &transfer.ArchiveError{Path: path.Join(imagesDir, name), Reason: "unreadable image", Err: err}
			}

			logger.Debug("copied image", "image", name, "size", humanize.Bytes(uint64(n)))

			results[i] = &target

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, name := range names {
		copied[name] = results[i]
	}

	paths := make([]*string, len(records))
	for i, rec := range records {
		paths[i] = copied[rec.ImageFileName]
	}

	return paths, nil
}

func copyEntry(ctx context.Context, fsys fs.FS, name, target string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := fsys.Open(name)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, src)
	if err != nil {
		return n, err
	}

	return n, out.Close()
}

// safeImageName accepts plain file names only.
func safeImageName(name string) bool {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}

	return fs.ValidPath(name)
}
