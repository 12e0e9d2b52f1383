package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/transfer"
)

// Extraction strategies accepted by NewExtractor.
const (
	StrategyDirectory = "directory"
	StrategyMemory    = "memory"
	StrategyAuto      = "auto"
)

var ErrUnknownStrategy = errors.New("unknown extract strategy")

// Extractor opens a downloaded bundle archive as a read-only file system.
type Extractor interface {
	Extract(ctx context.Context, archivePath string) (fs.FS, error)
}

// NewExtractor returns the extractor for strategy. Auto picks the directory
// strategy when workDir is writable and falls back to memory otherwise.
func NewExtractor(strategy, workDir string) (Extractor, error) {
	switch strategy {
	case StrategyDirectory:
		return &DirectoryExtractor{Dir: filepath.Join(workDir, "extracted")}, nil
	case StrategyMemory:
		return &MemoryExtractor{}, nil
	case StrategyAuto, "":
		if writable(workDir) {
			return &DirectoryExtractor{Dir: filepath.Join(workDir, "extracted")}, nil
		}

		return &MemoryExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func writable(dir string) bool {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return false
	}

	f, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return false
	}

	name := f.Name()
	f.Close()
	os.Remove(name)

	return true
}

// DirectoryExtractor unpacks the archive into Dir and serves files from disk.
type DirectoryExtractor struct {
	Dir string
}

func (e *DirectoryExtractor) Extract(ctx context.Context, archivePath string) (fs.FS, error) {
	logger := logctx.LoggerFromContext(ctx)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		// OpenReader hands back the reader together with ErrInsecurePath.
		if zr != nil {
			zr.Close()
		}

		return nil, &transfer.ArchiveError{Path: archivePath, Reason: err.Error(), Err: err}
	}
	defer zr.Close()

	if err := os.RemoveAll(e.Dir); err != nil {
		return nil, fmt.Errorf("failed to clear extraction directory: %w", err)
	}

	if err := os.MkdirAll(e.Dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	root := filepath.Clean(e.Dir) + string(os.PathSeparator)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := filepath.Join(e.Dir, f.Name)
		if !strings.HasPrefix(target, root) {
			return nil, &transfer.ArchiveError{Path: archivePath, Reason: fmt.Sprintf("illegal entry path %q", f.Name)}
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}

			continue
		}

		if err := extractFile(f, target); err != nil {
			return nil, &transfer.ArchiveError{Path: archivePath, Reason: err.Error(), Err: err}
		}
	}

	logger.Debug("extracted bundle", "dir", e.Dir, "entries", len(zr.File))

	return os.DirFS(e.Dir), nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}

	return out.Close()
}

// MemoryExtractor reads the whole archive into memory and serves entries from
// the zip directory without touching disk.
type MemoryExtractor struct{}

func (e *MemoryExtractor) Extract(ctx context.Context, archivePath string) (fs.FS, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, &transfer.ArchiveError{Path: archivePath, Reason: "unreadable archive", Err: err}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &transfer.ArchiveError{Path: archivePath, Reason: err.Error(), Err: err}
	}

	// zip.Reader refuses to open insecure names through fs.FS, so they can stay.
	logctx.LoggerFromContext(ctx).Debug("opened bundle in memory", "entries", len(zr.File))

	return zr, nil
}
