package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/italolelis/bundle_installer/internal/bundle"
	"github.com/italolelis/bundle_installer/internal/cleanup"
	"github.com/italolelis/bundle_installer/internal/downloader"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/recipe"
	"github.com/italolelis/bundle_installer/internal/sortkey"
	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/italolelis/bundle_installer/internal/transfer"
)

// ErrNoBundleURL is returned when no descriptor URL has been stored yet.
var ErrNoBundleURL = errors.New("no bundle url configured")

// Job downloads, extracts and installs the bundle once. Pause and Resume only
// affect the download; once it completes both are no-ops.
type Job struct {
	installer   *Installer
	onProgress  bundle.ProgressFunc
	archivePath string

	mu          sync.Mutex
	transfer    *downloader.Transfer
	pausedEarly bool
	downloaded  bool
}

// Pause pauses the download. A pause requested before the download started is
// applied as soon as it does.
func (j *Job) Pause() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case j.downloaded:
		return false
	case j.transfer != nil:
		return j.transfer.Pause()
	case j.pausedEarly:
		return false
	default:
		j.pausedEarly = true

		return true
	}
}

func (j *Job) Resume() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case j.downloaded:
		return false
	case j.transfer != nil:
		return j.transfer.Resume()
	case !j.pausedEarly:
		return false
	default:
		j.pausedEarly = false

		return true
	}
}

// Run performs the install and returns the installed version and recipe count.
func (j *Job) Run(ctx context.Context) (bundle.Result, error) {
	logger := logctx.LoggerFromContext(ctx)
	tel := j.installer.telemetry

	desc, err := j.installer.descriptors.Descriptor(ctx)
	if err != nil {
		return bundle.Result{}, fmt.Errorf("failed to read bundle descriptor: %w", err)
	}

	if strings.TrimSpace(desc.URL) == "" {
		return bundle.Result{}, &transfer.ManifestError{Entry: "descriptor", Reason: ErrNoBundleURL.Error(), Err: ErrNoBundleURL}
	}

	logger = logger.With("bundle_version", desc.Version)
	ctx = logctx.WithLogger(ctx, logger)

	if desc.Checksum != "" {
		logger.Debug("bundle checksum provided", "checksum", desc.Checksum)
	}

	if err := tel.InstrumentPhase(ctx, "download", func(ctx context.Context) error {
		return j.download(ctx, desc.URL)
	}); err != nil {
		return bundle.Result{}, err
	}

	var fsys fs.FS

	if err := tel.InstrumentPhase(ctx, "extract", func(ctx context.Context) error {
		var err error

		fsys, err = j.installer.extractor.Extract(ctx, j.archivePath)

		return err
	}); err != nil {
		return bundle.Result{}, err
	}

	records, err := readRecipes(fsys)
	if err != nil {
		return bundle.Result{}, err
	}

	version := readVersion(ctx, fsys)

	baseline, err := j.installer.recipes.BaselineTitles(ctx)
	if err != nil {
		return bundle.Result{}, &transfer.WriteError{Operation: "load baseline titles", Err: err}
	}

	resolved, renamed := recipe.ResolveTitles(records, baseline)
	if renamed > 0 {
		logger.Info("renamed colliding recipe titles", "renamed", renamed)
	}

	imagesDir := filepath.Join(j.installer.cfg.ImagesDir, installDirName(version))

	var count int

	err = tel.InstrumentPhase(ctx, "write", func(ctx context.Context) error {
		var err error

		count, err = j.write(ctx, fsys, resolved, imagesDir)

		return err
	})
	if err != nil {
		return bundle.Result{}, err
	}

	if err := cleanup.PruneImageDirs(ctx, j.installer.cfg.ImagesDir, filepath.Base(imagesDir)); err != nil {
		logger.Warn("failed to prune old image directories", "err", err)
	}

	tel.RecordRecipesInstalled(count)

	return bundle.Result{Version: version, RecipeCount: count}, nil
}

func (j *Job) download(ctx context.Context, url string) error {
	var reported int64

	t := downloader.NewTransfer(j.installer.client, url, j.archivePath, j.installer.cfg.ProgressInterval,
		func(written, total int64) {
			if written > reported {
				j.installer.telemetry.RecordBytesDownloaded(written - reported)
				reported = written
			}

			if total > 0 {
				j.onProgress(float64(written) / float64(total))
			}
		})

	j.mu.Lock()
	j.transfer = t

	if j.pausedEarly {
		t.Pause()
	}
	j.mu.Unlock()

	if err := t.Download(ctx); err != nil {
		return err
	}

	j.mu.Lock()
	j.downloaded = true
	j.mu.Unlock()

	j.onProgress(1)

	return nil
}

// write copies images and atomically replaces the premium recipes. The new
// images directory is removed again when the store write fails.
func (j *Job) write(ctx context.Context, fsys fs.FS, records []recipe.Record, imagesDir string) (int, error) {
	paths, err := copyImages(ctx, fsys, records, imagesDir, j.installer.cfg.ImageWorkers)
	if err != nil {
		os.RemoveAll(imagesDir)

		return 0, err
	}

	rows := make([]storage.RecipeRow, len(records))
	for i, rec := range records {
		rows[i] = storage.RecipeRow{
			Record:     rec,
			SearchText: recipe.SearchText(rec),
			SortKey:    sortkey.Derive(rec.Title, rec.Season, rec.Region),
			IsPremium:  true,
			ImagePath:  paths[i],
		}
	}

	if err := j.installer.recipes.ReplacePremium(ctx, rows); err != nil {
		os.RemoveAll(imagesDir)

		return 0, &transfer.WriteError{Operation: "replace premium recipes", Err: err}
	}

	return len(rows), nil
}

// installDirName names the images directory of one install.
func installDirName(version string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, version)

	return safe + "-" + uuid.NewString()[:8]
}
