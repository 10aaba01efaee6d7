package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/render"
)

func testSnapshot(ts int64, basemap string) *persistence.Snapshot {
	return &persistence.Snapshot{
		Version:   persistence.CurrentVersion,
		Timestamp: ts,
		Basemap:   basemap,
		Viewport:  render.Viewport{Center: [2]float64{13.4, 52.5}, Zoom: 10},
		Layers: []persistence.LayerState{
			{ID: "roads", Type: "geojson", Visible: true, Opacity: 0.8, Order: 0, Category: layer.CategoryOverlay},
			{ID: "labels", Type: "vector", Visible: false, Opacity: 1, Order: 1, Category: layer.CategoryAnnotation},
		},
		Plugins: []persistence.PluginState{
			{ID: "measure", Version: "1.0.0", SchemaVersion: 1, State: map[string]any{"units": "metric"}},
		},
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	jsonStore, err := NewFileStore(filepath.Join(dir, "json"), FormatJSON)
	require.NoError(t, err)
	yamlStore, err := NewFileStore(filepath.Join(dir, "yaml"), FormatYAML)
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"file-json": jsonStore,
		"file-yaml": yamlStore,
		"sqlite":    sqliteStore,
	}
}

func TestStores_SaveLoadListDelete(t *testing.T) {
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			first, err := st.Save(ctx, testSnapshot(1000, "streets"))
			require.NoError(t, err)
			second, err := st.Save(ctx, testSnapshot(2000, "satellite"))
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)
			assert.Equal(t, 2, first.Layers)
			assert.Equal(t, 1, first.Plugins)

			doc, err := st.Load(ctx, first.ID)
			require.NoError(t, err)
			snap, report, err := persistence.Parse(doc, nil)
			require.NoError(t, err, report.Errors)
			assert.Equal(t, "streets", snap.Basemap)
			assert.Equal(t, [2]float64{13.4, 52.5}, snap.Viewport.Center)
			require.Len(t, snap.Layers, 2)
			assert.Equal(t, layer.CategoryAnnotation, snap.Layers[1].Category)
			assert.InDelta(t, 0.8, snap.Layers[0].Opacity, 1e-9)
			p, ok := snap.Plugin("measure")
			require.True(t, ok)
			assert.Equal(t, "metric", p.State["units"])
			assert.Equal(t, 1, p.SchemaVersion)

			entries, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, first.ID, entries[0].ID)
			assert.Equal(t, second.ID, entries[1].ID)
			assert.Equal(t, "satellite", entries[1].Basemap)

			latest, err := Latest(ctx, st)
			require.NoError(t, err)
			assert.Equal(t, second.ID, latest.ID)

			require.NoError(t, st.Delete(ctx, first.ID))
			_, err = st.Load(ctx, first.ID)
			assert.ErrorIs(t, err, mcerrors.ErrSnapshotNotFound)
			assert.ErrorIs(t, st.Delete(ctx, first.ID), mcerrors.ErrSnapshotNotFound)

			entries, err = st.List(ctx)
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestLatest_Empty(t *testing.T) {
	st, err := NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = Latest(context.Background(), st)
	assert.ErrorIs(t, err, mcerrors.ErrSnapshotNotFound)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(Options{Driver: DriverFile, Path: dir, Format: FormatYAML})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)

	st, err = Open(Options{Driver: DriverSQLite, Path: filepath.Join(dir, "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(Options{Driver: "postgres", Path: dir})
	assert.ErrorIs(t, err, mcerrors.ErrInvalidInput)

	_, err = NewFileStore(dir, Format("toml"))
	assert.ErrorIs(t, err, mcerrors.ErrInvalidInput)
}

func TestFileStore_LoadSnapshotMigratesV1(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir, FormatYAML)
	require.NoError(t, err)

	v1 := []byte(`version: 1
timestamp: 1600000000000
basemap: streets
center: [2.35, 48.85]
zoomLevel: 6
layers:
  - {id: roads, type: geojson, visible: true, opacity: 1, order: 0}
plugins: []
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.yaml"), v1, 0o644))

	snap, report, err := LoadSnapshot(context.Background(), st, "legacy", nil)
	require.NoError(t, err)
	assert.True(t, report.Migrated)
	assert.Equal(t, 1, report.SourceVersion)
	assert.Equal(t, persistence.CurrentVersion, snap.Version)
	assert.InDelta(t, 6.0, snap.Viewport.Zoom, 1e-9)
	assert.Equal(t, layer.CategoryOverlay, snap.Layers[0].Category)

	entries, err := st.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "legacy", entries[0].ID)
	assert.Equal(t, 1, entries[0].Version)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	st, err := NewFileStore(t.TempDir(), FormatJSON)
	require.NoError(t, err)

	_, err = st.Load(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, mcerrors.ErrSnapshotNotFound)
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"snap.json", "snap.yaml", "snap.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, WriteFile(path, testSnapshot(5, "streets")))

			doc, err := ReadFile(path)
			require.NoError(t, err)
			report := persistence.Validate(doc)
			assert.True(t, report.Valid(), report.Errors)
			assert.Equal(t, persistence.CurrentVersion, report.Version)
		})
	}

	_, err := ReadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, mcerrors.ErrSnapshotNotFound)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = ReadFile(bad)
	assert.ErrorIs(t, err, mcerrors.ErrSnapshotInvalid)
}

func TestWriteDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	doc := map[string]any{"version": 2, "basemap": "streets"}
	require.NoError(t, WriteDocument(path, doc))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "streets", got["basemap"])
	assert.Equal(t, 2, got["version"])
}

func TestIsSnapshotFile(t *testing.T) {
	tests := map[string]bool{
		"a.json":       true,
		"a.YAML":       true,
		"a.yml":        true,
		"a.txt":        false,
		".tmp-123":     false,
		".hidden.json": false,
		"dir/b.json":   true,
		"snapshots.db": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsSnapshotFile(name), name)
	}
}

func TestWatcher_ReportsWrites(t *testing.T) {
	dir := t.TempDir()

	var (
		mu   sync.Mutex
		seen = map[string]string{}
	)
	w, err := NewWatcher(dir, func(_ context.Context, path string, doc map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		basemap, _ := doc["basemap"].(string)
		seen[filepath.Base(path)] = basemap
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, WriteFile(filepath.Join(dir, "a.json"), testSnapshot(1, "streets")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["a.json"] == "streets"
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	_, sawText := seen["notes.txt"]
	mu.Unlock()
	assert.False(t, sawText, "non-snapshot files must be ignored")
}

func TestWatcher_SingleFileAndErrors(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "live.json")
	require.NoError(t, WriteFile(target, testSnapshot(1, "streets")))

	changes := make(chan string, 4)
	errs := make(chan error, 4)
	w, err := NewWatcher(target,
		func(_ context.Context, path string, doc map[string]any) {
			basemap, _ := doc["basemap"].(string)
			select {
			case changes <- basemap:
			default:
			}
		},
		WithDebounce(10*time.Millisecond),
		WithErrorHandler(func(_ string, err error) {
			select {
			case errs <- err:
			default:
			}
		}),
	)
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, WriteFile(filepath.Join(dir, "other.json"), testSnapshot(2, "ignored")))
	require.NoError(t, WriteFile(target, testSnapshot(3, "satellite")))

	select {
	case got := <-changes:
		assert.Equal(t, "satellite", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported for watched file")
	}

	require.NoError(t, os.WriteFile(target, []byte("{broken"), 0o644))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, mcerrors.ErrSnapshotInvalid)
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported for unreadable file")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), nil)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
}
