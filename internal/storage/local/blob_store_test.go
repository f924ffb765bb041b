package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarls/ghast/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "snapshots")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		require.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("BaseDirIsFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "snapshots/abc.html", "text/html", bytes.NewReader([]byte("<html>1</html>")))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "snapshots/abc.html"), uri)

	again, err := store.PutObject(ctx, "snapshots/abc.html", "text/html", strings.NewReader("<html>2</html>"))
	require.NoError(t, err)
	require.Equal(t, uri, again)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(filepath.Join(dir, "snapshots/abc.html"))
	require.NoError(t, err)
	require.Equal(t, "<html>1</html>", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = store.PutObject(ctx, "", "text/html", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(ctx, "../outside.html", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}
