package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusNotDownloaded, StatusDownloading, StatusPaused, StatusFailed, StatusReady} {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusNotDownloaded, got)

	_, err = ParseStatus("installing")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
