package assets_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plus3/slotmap/assets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsCatalogFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := assets.NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	path := filepath.Join(dir, "sprites.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	select {
	case got := <-w.Events:
		assert.Equal(t, path, got)
	case err := <-w.Errors:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no event for sprites.json")
	}
}

func TestWatcherCloseClosesChannels(t *testing.T) {
	w, err := assets.NewWatcher(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Events
	assert.False(t, ok)
	_, ok = <-w.Errors
	assert.False(t, ok)
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := assets.NewWatcher(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCatalogWatchReloads(t *testing.T) {
	f := newFixture(t)
	edited := newFixture(t)
	edited.catalog.Textures.MustGet(edited.atlas).Width = 128
	dir := t.TempDir()
	require.NoError(t, edited.catalog.Save(dir, assets.JSON))

	w := &assets.Watcher{Events: make(chan string, 2), Errors: make(chan error)}
	w.Events <- filepath.Join(dir, "missing.json")
	w.Events <- filepath.Join(dir, "textures.json")
	close(w.Events)

	f.catalog.Watch(context.Background(), w)

	atlas, err := f.catalog.Textures.Get(f.atlas)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), atlas.Width)
}
