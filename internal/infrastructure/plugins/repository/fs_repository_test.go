package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/reglet-dev/flowgate/internal/domain/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSBundleStore(t *testing.T) {
	root := t.TempDir()
	store := NewFSBundleStore(root)
	ctx := context.Background()

	id := values.MustParsePluginPackageID("acme/tools/1.0.0")
	bundle := []byte(`functions: { ping: { handler: () => "pong" } }`)

	t.Run("Write", func(t *testing.T) {
		dir, err := store.Write(ctx, id, bundle, []byte(`{"name":"tools"}`))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "acme", "tools", "1.0.0"), dir)

		assert.FileExists(t, filepath.Join(dir, BundleFileName))
		assert.FileExists(t, filepath.Join(dir, ManifestFileName))
		assert.True(t, store.Exists(id))
	})

	t.Run("Read", func(t *testing.T) {
		text, err := store.ReadBundle(id)
		require.NoError(t, err)
		assert.Equal(t, string(bundle), text)

		manifest, err := store.ReadManifest(id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"tools"}`, string(manifest))
	})

	t.Run("Scan", func(t *testing.T) {
		other := values.MustParsePluginPackageID("acme/alpha/0.1.0")
		_, err := store.Write(ctx, other, bundle, nil)
		require.NoError(t, err)

		manifest, err := store.ReadManifest(other)
		require.NoError(t, err)
		assert.Nil(t, manifest)

		// Directories without a bundle are ignored
		require.NoError(t, os.MkdirAll(filepath.Join(root, "acme", "empty", "1.0.0"), 0o750))

		ids, err := store.Scan(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.Equal(t, "acme/alpha/0.1.0", ids[0].String())
		assert.Equal(t, "acme/tools/1.0.0", ids[1].String())
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, id))
		assert.False(t, store.Exists(id))

		// Package directory is pruned, author directory still has content
		assert.NoDirExists(t, filepath.Join(root, "acme", "tools"))
		assert.DirExists(t, filepath.Join(root, "acme"))

		// Removing again is a no-op
		require.NoError(t, store.Remove(ctx, id))
	})

	t.Run("Remove_PrunesToRoot", func(t *testing.T) {
		lone := values.MustParsePluginPackageID("solo/pkg/1.0.0")
		_, err := store.Write(ctx, lone, bundle, nil)
		require.NoError(t, err)

		require.NoError(t, store.Remove(ctx, lone))
		assert.NoDirExists(t, filepath.Join(root, "solo"))
		assert.DirExists(t, root)
	})
}

func TestFSBundleStore_RewriteWithoutManifest(t *testing.T) {
	store := NewFSBundleStore(t.TempDir())
	ctx := context.Background()
	id := values.MustParsePluginPackageID("acme/tools/1.0.0")

	dir, err := store.Write(ctx, id, []byte("function a() {}"), []byte(`{"name":"tools"}`))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, ManifestFileName))

	_, err = store.Write(ctx, id, []byte("function b() {}"), nil)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, ManifestFileName))
	manifest, err := store.ReadManifest(id)
	require.NoError(t, err)
	assert.Nil(t, manifest)

	text, err := store.ReadBundle(id)
	require.NoError(t, err)
	assert.Equal(t, "function b() {}", text)
}

func TestFSBundleStore_ScanMissingRoot(t *testing.T) {
	store := NewFSBundleStore(filepath.Join(t.TempDir(), "does-not-exist"))

	ids, err := store.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
