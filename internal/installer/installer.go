// Package installer downloads the premium bundle archive and installs its
// recipes and images into the local store.
package installer

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/italolelis/bundle_installer/internal/bundle"
	"github.com/italolelis/bundle_installer/internal/cleanup"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/italolelis/bundle_installer/internal/telemetry"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	archiveName = "bundle.zip"
)

// DescriptorSource provides the location of the bundle to install.
type DescriptorSource interface {
	Descriptor(ctx context.Context) (storage.Descriptor, error)
}

// Config holds the installer settings.
type Config struct {
	WorkDir          string
	ImagesDir        string
	ProgressInterval int64
	ImageWorkers     int
}

// Installer creates install jobs. It implements bundle.Installer and bundle.Cleaner.
type Installer struct {
	cfg         Config
	client      *http.Client
	descriptors DescriptorSource
	recipes     storage.RecipeRepository
	extractor   Extractor
	telemetry   *telemetry.Telemetry
}

func New(
	cfg Config,
	client *http.Client,
	descriptors DescriptorSource,
	recipes storage.RecipeRepository,
	extractor Extractor,
	tel *telemetry.Telemetry,
) *Installer {
	return &Installer{
		cfg:         cfg,
		client:      client,
		descriptors: descriptors,
		recipes:     recipes,
		extractor:   extractor,
		telemetry:   tel,
	}
}

// Cleanup discards the partial download and extraction output of a previous
// run and leaves an empty working directory.
func (i *Installer) Cleanup(ctx context.Context) error {
	logctx.LoggerFromContext(ctx).Debug("resetting work directory", "dir", i.cfg.WorkDir)

	return cleanup.ResetDir(ctx, i.cfg.WorkDir)
}

// CreateJob returns a job that reports download progress to onProgress.
func (i *Installer) CreateJob(onProgress bundle.ProgressFunc) bundle.Job {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	return &Job{
		installer:   i,
		onProgress:  onProgress,
		archivePath: filepath.Join(i.cfg.WorkDir, archiveName),
	}
}
