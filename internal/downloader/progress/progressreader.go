package progress

import (
	"errors"
	"io"
)

// ProgressReader wraps an io.Reader and reports progress via a callback.
type ProgressReader struct {
	Reader         io.Reader
	Total          int64 // expected total bytes including any resumed prefix, <= 0 when unknown
	OnProgress     func(written int64, total int64)
	totalRead      int64 // cumulative total, starts at the resume offset
	lastReport     int64 // bytes since last report
	reportInterval int64 // bytes
}

// NewReader returns a ProgressReader whose count starts at offset so that a
// resumed transfer keeps reporting against the full size.
func NewReader(r io.Reader, offset, total, interval int64, cb func(written int64, total int64)) *ProgressReader {
	return &ProgressReader{
		Reader:         r,
		Total:          total,
		OnProgress:     cb,
		totalRead:      offset,
		reportInterval: interval,
	}
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
		pr.lastReport += int64(n)

		if pr.lastReport >= pr.reportInterval {
			pr.report()
		}
	}

	if errors.Is(err, io.EOF) && pr.lastReport > 0 {
		pr.report()
	}

	return n, err
}

// Written returns the bytes counted so far, including the resume offset.
func (pr *ProgressReader) Written() int64 {
	return pr.totalRead
}

func (pr *ProgressReader) report() {
	pr.lastReport = 0

	if pr.OnProgress != nil {
		pr.OnProgress(pr.totalRead, pr.Total)
	}
}
