package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneImageDirs(t *testing.T) {
	root := t.TempDir()

	for _, dir := range []string{"v1-aaaa", "v2-bbbb", "v3-cccc"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, dir, "img.jpg"), []byte("x"), 0644))
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("keep me"), 0644))

	require.NoError(t, PruneImageDirs(context.Background(), root, "v3-cccc"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	assert.ElementsMatch(t, []string{"README", "v3-cccc"}, names)
}

func TestPruneImageDirs_MissingRoot(t *testing.T) {
	err := PruneImageDirs(context.Background(), filepath.Join(t.TempDir(), "missing"), "v1")
	require.NoError(t, err)
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "extracted"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.zip"), []byte("partial"), 0644))

	require.NoError(t, ResetDir(context.Background(), dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
