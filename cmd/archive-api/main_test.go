package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sounding_archive/internal/archive"
	"sounding_archive/internal/config"
	"sounding_archive/internal/observability"
)

func newArchive(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "archive")
	arch, err := archive.Create(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, arch.Close())
	return root
}

func TestRun(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	logger := observability.Discard()

	t.Run("not an archive", func(t *testing.T) {
		err := run(context.Background(), cfg, serveOptions{root: t.TempDir(), addr: "127.0.0.1:0"}, logger)
		assert.ErrorIs(t, err, archive.ErrNotArchive)
	})

	t.Run("listen failure is returned", func(t *testing.T) {
		root := newArchive(t)
		err := run(context.Background(), cfg, serveOptions{root: root, addr: "127.0.0.1:-1"}, logger)
		require.Error(t, err)

		arch, err := archive.Connect(context.Background(), root)
		require.NoError(t, err)
		require.NoError(t, arch.Close())
	})
}

func TestSplitKeys(t *testing.T) {
	assert.Nil(t, splitKeys(""))
	assert.Equal(t, []string{"a", "b"}, splitKeys("a, b"))
}
