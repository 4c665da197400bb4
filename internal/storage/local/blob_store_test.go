package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedharvest/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingBaseDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "archive")
		store, err := local.New(local.Config{BaseDir: base})
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("EmptyBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.WriteFile(base, []byte("x"), 0o600))

		_, err := local.New(local.Config{BaseDir: base})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		base := t.TempDir()
		// #nosec G302 -- read-only on purpose to trigger the writability probe.
		require.NoError(t, os.Chmod(base, 0o500))
		t.Cleanup(func() {
			_ = os.Chmod(base, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: base})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base})
	require.NoError(t, err)

	t.Run("WritesNestedObject", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "raw/batch-1/article.html", "text/html", bytes.NewReader([]byte("<html>body</html>")))
		require.NoError(t, err)

		dest := filepath.Join(base, "raw", "batch-1", "article.html")
		assert.Equal(t, "file://"+dest, uri)

		// #nosec G304 -- reading back from the controlled temp directory.
		body, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "<html>body</html>", string(body))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "  ", "text/html", bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("RejectsEscapingPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../outside.html", "text/html", bytes.NewReader([]byte("x")))
		assert.Error(t, err)
	})

	t.Run("OverwritesExistingObject", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "raw/page.html", "text/html", bytes.NewReader([]byte("first")))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "raw/page.html", "text/html", bytes.NewReader([]byte("second")))
		require.NoError(t, err)

		// #nosec G304 -- reading back from the controlled temp directory.
		body, err := os.ReadFile(filepath.Join(base, "raw", "page.html"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(body))
	})
}
