package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/bundle_installer/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload_ReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 1000)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	target := filepath.Join(t.TempDir(), "bundle.zip")

	var (
		mu    sync.Mutex
		ticks [][2]int64
	)

	tr := NewTransfer(ts.Client(), ts.URL, target, 250, func(written, total int64) {
		mu.Lock()
		ticks = append(ticks, [2]int64{written, total})
		mu.Unlock()
	})

	require.NoError(t, tr.Download(context.Background()))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.False(t, tr.Pause(), "a finished transfer cannot be paused")

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, ticks)
	assert.Equal(t, [2]int64{1000, 1000}, ticks[len(ticks)-1])

	for i := 1; i < len(ticks); i++ {
		assert.GreaterOrEqual(t, ticks[i][0], ticks[i-1][0], "progress must not go backwards")
	}
}

// newStallingServer serves payload, stalling the first full request halfway
// until the client drops it. Range requests are answered in full. It returns the
// Range headers seen so far.
func newStallingServer(t *testing.T, payload []byte) (*httptest.Server, func() []string) {
	t.Helper()

	half := len(payload) / 2

	var (
		mu     sync.Mutex
		ranges []string
	)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")

		mu.Lock()
		ranges = append(ranges, rng)
		mu.Unlock()

		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			_, _ = w.Write(payload[:half])
			w.(http.Flusher).Flush()

			// Stall until the client gives up on this attempt.
			<-r.Context().Done()

			return
		}

		var start int
		_, err := fmt.Sscanf(rng, "bytes=%d-", &start)
		if !assert.NoError(t, err) {
			return
		}

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(payload)-1, len(payload)))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)-start))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[start:])
	}))
	t.Cleanup(ts.Close)

	return ts, func() []string {
		mu.Lock()
		defer mu.Unlock()

		return append([]string(nil), ranges...)
	}
}

// startUntilHalfway runs Download in the background and returns once half of
// payloadSize has been reported.
func startUntilHalfway(t *testing.T, ts *httptest.Server, target string, payloadSize int) (*Transfer, <-chan error) {
	t.Helper()

	halfway := make(chan struct{})

	var once sync.Once

	tr := NewTransfer(ts.Client(), ts.URL, target, 100, func(written, total int64) {
		if written >= int64(payloadSize/2) {
			once.Do(func() { close(halfway) })
		}
	})

	done := make(chan error, 1)

	go func() {
		done <- tr.Download(context.Background())
	}()

	select {
	case <-halfway:
	case <-time.After(5 * time.Second):
		t.Fatal("download never reached the halfway mark")
	}

	return tr, done
}

func TestDownload_PauseAndResumeWithRange(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)
	half := len(payload) / 2

	ts, ranges := newStallingServer(t, payload)
	target := filepath.Join(t.TempDir(), "bundle.zip")

	tr, done := startUntilHalfway(t, ts, target, len(payload))

	require.True(t, tr.Pause())
	assert.False(t, tr.Pause(), "second pause is a no-op")

	select {
	case err := <-done:
		t.Fatalf("download returned while paused: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.True(t, tr.Resume())
	assert.False(t, tr.Resume(), "second resume is a no-op")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not finish after resume")
	}

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	seen := ranges()
	require.Len(t, seen, 2)
	assert.Equal(t, "", seen[0])
	assert.Equal(t, "bytes="+strconv.Itoa(half)+"-", seen[1])

	assert.False(t, tr.Pause(), "pause after completion is a no-op")
}

func TestDownload_ImmediateResumeAfterPause(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)

	ts, ranges := newStallingServer(t, payload)
	target := filepath.Join(t.TempDir(), "bundle.zip")

	tr, done := startUntilHalfway(t, ts, target, len(payload))

	// Resume lands before the cancelled attempt has unwound.
	require.True(t, tr.Pause())
	require.True(t, tr.Resume())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not finish after resume")
	}

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Len(t, ranges(), 2)
}

func TestDownload_PauseAtLastByteHoldsUntilResume(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 1000)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "bundle.zip", time.Time{}, bytes.NewReader(payload))
	}))
	defer ts.Close()

	target := filepath.Join(t.TempDir(), "bundle.zip")
	paused := make(chan bool, 1)

	var (
		tr   *Transfer
		once sync.Once
	)

	tr = NewTransfer(ts.Client(), ts.URL, target, 100, func(written, total int64) {
		if written == total {
			once.Do(func() { paused <- tr.Pause() })
		}
	})

	done := make(chan error, 1)

	go func() {
		done <- tr.Download(context.Background())
	}()

	select {
	case ok := <-paused:
		require.True(t, ok, "the attempt is still live at the last byte")
	case <-time.After(5 * time.Second):
		t.Fatal("download never reached the last byte")
	}

	select {
	case err := <-done:
		t.Fatalf("download returned while paused: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.True(t, tr.Resume())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("download did not finish after resume")
	}

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDownload_ContextCancelledWhilePaused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer ts.Close()

	tr := NewTransfer(ts.Client(), ts.URL, filepath.Join(t.TempDir(), "bundle.zip"), 0, nil)
	require.True(t, tr.Pause())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.Download(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownload_HTTPErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		check      func(t *testing.T, err error)
	}{
		{
			name:       "server error",
			statusCode: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var netErr *transfer.NetworkError
				require.True(t, errors.As(err, &netErr))
				assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
			},
		},
		{
			name:       "not found",
			statusCode: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var netErr *transfer.NetworkError
				require.True(t, errors.As(err, &netErr))
				assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
			},
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var authErr *transfer.AuthenticationError
				require.True(t, errors.As(err, &authErr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer ts.Close()

			tr := NewTransfer(ts.Client(), ts.URL, filepath.Join(t.TempDir(), "bundle.zip"), 0, nil)
			err := tr.Download(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestDownload_RestartsWhenRangeIgnored(t *testing.T) {
	payload := []byte("complete bundle contents")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	target := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(target, []byte("stale partial"), 0644))

	tr := NewTransfer(ts.Client(), ts.URL, target, 0, nil)
	require.NoError(t, tr.Download(context.Background()))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(got))
}

func TestRangeTotal(t *testing.T) {
	resp := &http.Response{Header: http.Header{}, ContentLength: 10}
	assert.Equal(t, int64(15), rangeTotal(resp, 5))

	resp.Header.Set("Content-Range", "bytes 5-14/40")
	assert.Equal(t, int64(40), rangeTotal(resp, 5))

	resp.Header.Set("Content-Range", "bytes 5-14/*")
	assert.Equal(t, int64(15), rangeTotal(resp, 5))

	resp = &http.Response{Header: http.Header{}, ContentLength: -1}
	assert.Equal(t, int64(-1), rangeTotal(resp, 5))
}
