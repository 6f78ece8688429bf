package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuro6061/nexum/common/config"
	"github.com/kuro6061/nexum/common/logger"
)

func TestFSStorePutGet(t *testing.T) {
	dir := t.TempDir()
	store := NewFSStore(dir)
	ctx := context.Background()

	path, err := store.Put(ctx, "exec-1-fetch", []byte(`{"rows":42}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "exec-1-fetch.json"), path)

	data, err := store.Get(ctx, "exec-1-fetch")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":42}`, string(data))
}

func TestFSStoreCreatesDirLazily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "blobs")
	store := NewFSStore(dir)

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	_, err = store.Put(context.Background(), "b1", []byte(`[]`))
	require.NoError(t, err)

	_, err = os.Stat(dir)
	require.NoError(t, err)
}

func TestFSStoreGetMissing(t *testing.T) {
	store := NewFSStore(t.TempDir())

	_, err := store.Get(context.Background(), "nope")
	assert.Error(t, err)
}

func TestFSStoreOverwrite(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Put(ctx, "b1", []byte(`"first"`))
	require.NoError(t, err)
	_, err = store.Put(ctx, "b1", []byte(`"second"`))
	require.NoError(t, err)

	data, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, `"second"`, string(data))
}

func TestNewSelectsBackend(t *testing.T) {
	log := logger.New("error", "text")

	store, err := New(config.BlobConfig{Backend: "fs", Dir: t.TempDir()}, log)
	require.NoError(t, err)
	_, ok := store.(*FSStore)
	assert.True(t, ok)

	_, err = New(config.BlobConfig{Backend: "s3"}, log)
	assert.Error(t, err)
}
