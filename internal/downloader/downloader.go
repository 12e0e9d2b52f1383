// Package downloader fetches a single remote file to disk with support for
// pausing and resuming the byte transfer through HTTP range requests.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/bundle_installer/internal/downloader/progress"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/transfer"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	operation = "download_bundle"

	// DefaultProgressInterval is used when a Transfer is created with a non-positive interval.
	DefaultProgressInterval = int64(256 * 1024)
)

// ProgressFunc receives the bytes written so far and the expected total, which is
// <= 0 when the server did not announce a size.
type ProgressFunc func(written int64, total int64)

// Transfer downloads url into targetPath. It can be paused and resumed from any
// goroutine while Download is running.
type Transfer struct {
	client           *http.Client
	url              string
	targetPath       string
	progressInterval int64
	onProgress       ProgressFunc

	mu       sync.Mutex
	paused   bool
	finished bool
	resumed  chan struct{}
	cancel   context.CancelFunc

	// interrupted is set when Pause cancels a live attempt and is consumed by
	// Download once that attempt returns.
	interrupted bool
}

// NewTransfer creates a transfer. A nil client falls back to http.DefaultClient.
func NewTransfer(client *http.Client, url, targetPath string, progressInterval int64, onProgress ProgressFunc) *Transfer {
	if client == nil {
		client = http.DefaultClient
	}

	if progressInterval <= 0 {
		progressInterval = DefaultProgressInterval
	}

	return &Transfer{
		client:           client,
		url:              url,
		targetPath:       targetPath,
		progressInterval: progressInterval,
		onProgress:       onProgress,
	}
}

// Download runs the transfer to completion. While paused it blocks until Resume
// is called or ctx is done.
func (t *Transfer) Download(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := ensureTargetDir(t.targetPath, logger); err != nil {
		return err
	}

	defer t.finish()

	for {
		attemptCtx, err := t.waitUntilRunnable(ctx)
		if err != nil {
			return err
		}

		err = t.fetch(attemptCtx)

		t.mu.Lock()
		t.cancel = nil
		interrupted := t.interrupted
		t.interrupted = false

		if err == nil && !interrupted {
			t.finished = true
		}
		t.mu.Unlock()

		// An attempt Pause interrupted ends with the pause, whatever it returned
		// and even if Resume already ran. The next attempt picks up the bytes on disk.
		if interrupted && ctx.Err() == nil {
			logger.Info("bundle download paused", "target", t.targetPath)

			continue
		}

		return err
	}
}

// Pause interrupts the in-flight request. It reports false when the transfer
// has already finished or is already paused. A pause that returns true always
// holds the download until Resume.
func (t *Transfer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished || t.paused {
		return false
	}

	t.paused = true
	t.resumed = make(chan struct{})

	if t.cancel != nil {
		t.interrupted = true
		t.cancel()
	}

	return true
}

// Resume continues a paused transfer from the bytes already on disk. It reports
// false when the transfer is not paused.
func (t *Transfer) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished || !t.paused {
		return false
	}

	t.paused = false
	close(t.resumed)

	return true
}

func (t *Transfer) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finished = true

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// waitUntilRunnable blocks while paused and returns a context for the next
// request attempt that Pause can cancel.
func (t *Transfer) waitUntilRunnable(ctx context.Context) (context.Context, error) {
	t.mu.Lock()

	for t.paused {
		resumed := t.resumed
		t.mu.Unlock()

		select {
		case <-resumed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		t.mu.Lock()
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	return attemptCtx, nil
}

func (t *Transfer) fetch(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	offset, err := existingSize(t.targetPath)
	if err != nil {
		return fmt.Errorf("failed to stat partial download: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return &transfer.NetworkError{Operation: operation, Message: "invalid bundle url", Err: err}
	}

	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		return &transfer.NetworkError{Operation: operation, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	var total int64

	flags := os.O_CREATE | os.O_WRONLY

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
		total = rangeTotal(resp, offset)
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// The partial file already holds every byte.
		logger.Debug("bundle already fully downloaded", "bytes", offset)

		t.report(offset, offset)

		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &transfer.AuthenticationError{
			Operation: operation,
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Server ignored the range, start over.
		flags |= os.O_TRUNC
		offset = 0
		total = resp.ContentLength
	default:
		return &transfer.NetworkError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	out, err := os.OpenFile(t.targetPath, flags, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open target file: %w", err)
	}
	defer out.Close()

	return t.writeFile(ctx, out, resp.Body, offset, total)
}

func (t *Transfer) writeFile(ctx context.Context, out *os.File, reader io.Reader, offset, totalBytes int64) error {
	logger := logctx.LoggerFromContext(ctx)

	if totalBytes > 0 {
		logger.Info("downloading bundle",
			"target", t.targetPath,
			"resume_from", humanize.Bytes(uint64(offset)),
			"bundle_size", humanize.Bytes(uint64(totalBytes)))
	} else {
		logger.Info("downloading bundle", "target", t.targetPath, "resume_from", humanize.Bytes(uint64(offset)))
	}

	pr := progress.NewReader(reader, offset, totalBytes, t.progressInterval, func(written, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"downloaded", humanize.Bytes(uint64(written)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(written)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "downloaded", humanize.Bytes(uint64(written)))
		}

		t.report(written, total)
	})

	if _, err := io.Copy(out, pr); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		return &transfer.NetworkError{Operation: operation, Message: "connection interrupted", Err: err}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to flush bundle to disk: %w", err)
	}

	logger.Info("downloaded bundle", "target", t.targetPath, "size", humanize.Bytes(uint64(pr.Written())))

	return nil
}

func (t *Transfer) report(written, total int64) {
	if t.onProgress != nil {
		t.onProgress(written, total)
	}
}

// rangeTotal reads the full size from a "Content-Range: bytes a-b/total" header,
// falling back to offset plus the partial body length.
func rangeTotal(resp *http.Response, offset int64) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndex(cr, "/"); i >= 0 {
			if total, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return total
			}
		}
	}

	if resp.ContentLength >= 0 {
		return offset + resp.ContentLength
	}

	return -1
}

func existingSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	return info.Size(), nil
}

func ensureTargetDir(targetPath string, logger *slog.Logger) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		logger.Error("failed to create target directory", "dir", dir, "err", err)

		return fmt.Errorf("failed to create target directory: %w", err)
	}

	return nil
}
