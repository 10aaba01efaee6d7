package persistence

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/plugin"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/render/memrender"
)

func v2Document() map[string]any {
	return map[string]any{
		"version":   2.0,
		"timestamp": 1700000000000.0,
		"basemap":   "streets",
		"viewport": map[string]any{
			"center":  []any{13.4, 52.5},
			"zoom":    10.0,
			"bearing": 0.0,
			"pitch":   0.0,
		},
		"layers": []any{
			map[string]any{"id": "roads", "type": "geojson", "visible": true, "opacity": 1.0, "order": 0.0, "category": "overlay"},
		},
		"plugins": []any{
			map[string]any{"id": "measure", "version": "1.0.0", "state": map[string]any{"units": "metric"}},
		},
	}
}

func v1Document() map[string]any {
	return map[string]any{
		"version":   1,
		"timestamp": 1600000000000,
		"basemap":   "streets",
		"center":    []any{2.35, 48.85},
		"zoomLevel": 7,
		"layers": []any{
			map[string]any{"id": "roads", "type": "geojson", "visible": false, "opacity": 0.5, "order": 0},
		},
		"plugins": []any{},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]any)
		wantValid bool
		wantWarn  bool
		wantErr   string
	}{
		{name: "current version", mutate: func(map[string]any) {}, wantValid: true},
		{
			name:      "newer version warns",
			mutate:    func(d map[string]any) { d["version"] = 3.0 },
			wantValid: true,
			wantWarn:  true,
		},
		{
			name:    "below minimum",
			mutate:  func(d map[string]any) { d["version"] = 0.0 },
			wantErr: "below minimum",
		},
		{
			name:    "missing version",
			mutate:  func(d map[string]any) { delete(d, "version") },
			wantErr: "version",
		},
		{
			name:    "missing viewport",
			mutate:  func(d map[string]any) { delete(d, "viewport") },
			wantErr: "viewport",
		},
		{
			name:    "layers not an array",
			mutate:  func(d map[string]any) { d["layers"] = "roads" },
			wantErr: "layers",
		},
		{
			name: "layer without category",
			mutate: func(d map[string]any) {
				delete(d["layers"].([]any)[0].(map[string]any), "category")
			},
			wantErr: "category",
		},
		{
			name: "plugin without id",
			mutate: func(d map[string]any) {
				d["plugins"] = []any{map[string]any{"state": map[string]any{}}}
			},
			wantErr: "plugins[0].id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := v2Document()
			tt.mutate(doc)
			r := Validate(doc)
			if r.Valid() != tt.wantValid {
				t.Fatalf("Valid() = %v, want %v (errors: %v)", r.Valid(), tt.wantValid, r.Errors)
			}
			if (len(r.Warnings) > 0) != tt.wantWarn {
				t.Errorf("Warnings = %v, want warning: %v", r.Warnings, tt.wantWarn)
			}
			if tt.wantErr != "" && !strings.Contains(strings.Join(r.Errors, "\n"), tt.wantErr) {
				t.Errorf("Errors = %v, want one mentioning %q", r.Errors, tt.wantErr)
			}
		})
	}
}

func TestValidate_BelowMinimumIsTooOld(t *testing.T) {
	doc := v2Document()
	doc["version"] = 0
	_, report, err := Parse(doc, nil)
	if err == nil {
		t.Fatal("Parse() should reject a version below the minimum")
	}
	if !errors.Is(err, mcerrors.ErrSnapshotTooOld) {
		t.Errorf("error = %v, want ErrSnapshotTooOld", err)
	}
	if report.Valid() {
		t.Error("report should be invalid")
	}
}

func TestMigrator_V1(t *testing.T) {
	doc := v1Document()
	out, err := DefaultMigrator().Migrate(doc)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if v, _ := asInt(out["version"]); v != CurrentVersion {
		t.Errorf("version = %v, want %d", out["version"], CurrentVersion)
	}
	vp, ok := out["viewport"].(map[string]any)
	if !ok {
		t.Fatalf("viewport = %T", out["viewport"])
	}
	if z, _ := asFloat(vp["zoom"]); z != 7 {
		t.Errorf("viewport.zoom = %v, want 7", vp["zoom"])
	}
	if _, has := out["zoomLevel"]; has {
		t.Error("zoomLevel should be removed")
	}
	l := out["layers"].([]any)[0].(map[string]any)
	if l["category"] != "overlay" {
		t.Errorf("category = %v, want overlay", l["category"])
	}

	if _, has := doc["viewport"]; has {
		t.Error("Migrate() modified its input")
	}
	if v := doc["version"]; v != 1 {
		t.Errorf("input version changed to %v", v)
	}
}

func TestMigrator_Register(t *testing.T) {
	m := NewMigrator()
	noop := func(d map[string]any) (map[string]any, error) { return d, nil }

	if err := m.Register(0, noop); !errors.Is(err, mcerrors.ErrInvalidInput) {
		t.Errorf("Register(0) error = %v, want ErrInvalidInput", err)
	}
	if err := m.Register(CurrentVersion, noop); err == nil {
		t.Error("Register(CurrentVersion) should fail")
	}
	if err := m.Register(1, nil); err == nil {
		t.Error("Register(nil) should fail")
	}
	if err := m.Register(1, noop); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(1, noop); err == nil {
		t.Error("duplicate Register() should fail")
	}
	if got := m.Versions(); !slices.Equal(got, []int{1}) {
		t.Errorf("Versions() = %v", got)
	}
}

func TestMigrator_MissingStep(t *testing.T) {
	_, _, err := Parse(v1Document(), NewMigrator())
	if !errors.Is(err, mcerrors.ErrMigrationMissing) {
		t.Fatalf("Parse() error = %v, want ErrMigrationMissing", err)
	}
	if got := mcerrors.GetCode(err); got != mcerrors.CodeSnapshotMigrate {
		t.Errorf("GetCode() = %q", got)
	}
}

func TestParse_MigratesV1(t *testing.T) {
	s, report, err := Parse(v1Document(), nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !report.Migrated || report.SourceVersion != 1 || report.Version != CurrentVersion {
		t.Errorf("report = %+v", report)
	}
	if s.Viewport.Zoom != 7 || s.Viewport.Center != [2]float64{2.35, 48.85} {
		t.Errorf("Viewport = %+v", s.Viewport)
	}
	l, ok := s.Layer("roads")
	if !ok || l.Category != layer.CategoryOverlay || l.Visible || l.Opacity != 0.5 {
		t.Errorf("Layer(roads) = %+v, %v", l, ok)
	}
}

func TestEncodeParseJSON(t *testing.T) {
	in := &Snapshot{
		Version:   CurrentVersion,
		Timestamp: 42,
		Basemap:   "satellite",
		Viewport:  render.Viewport{Center: [2]float64{1, 2}, Zoom: 3, Bearing: 45, Pitch: 30},
		Layers: []LayerState{
			{ID: "a", Type: "geojson", Visible: true, Opacity: 0.3, Order: 0, Category: layer.CategoryBase},
		},
		Plugins: []PluginState{{ID: "p", Version: "2", SchemaVersion: 2, State: map[string]any{"k": "v"}}},
		Custom:  map[string]any{"title": "demo"},
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"schemaVersion": 2`, `"custom"`, `"center"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("encoded snapshot missing %s:\n%s", key, data)
		}
	}

	out, report, err := ParseJSON(data, nil)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v (%v)", err, report.Errors)
	}
	if report.Migrated {
		t.Error("current snapshot should not be migrated")
	}
	if out.Basemap != in.Basemap || out.Viewport != in.Viewport || out.Custom["title"] != "demo" {
		t.Errorf("ParseJSON() = %+v", out)
	}
	if p, ok := out.Plugin("p"); !ok || p.SchemaVersion != 2 || p.State["k"] != "v" {
		t.Errorf("Plugin(p) = %+v, %v", p, ok)
	}

	if _, _, err := ParseJSON([]byte("{not json"), nil); !errors.Is(err, mcerrors.ErrSnapshotInvalid) {
		t.Errorf("ParseJSON(garbage) error = %v", err)
	}
}

// fakeBasemaps records basemap switches.
type fakeBasemaps struct {
	current  string
	switches []string
	fail     error
}

func (b *fakeBasemaps) Basemap() string { return b.current }

func (b *fakeBasemaps) SetBasemap(_ context.Context, id string) error {
	b.switches = append(b.switches, id)
	if b.fail != nil {
		return b.fail
	}
	b.current = id
	return nil
}

type rendererCamera struct{ r *memrender.Renderer }

func (c rendererCamera) Viewport() (render.Viewport, error) { return c.r.Viewport(), nil }

func (c rendererCamera) JumpTo(ctx context.Context, vp render.Viewport) error {
	return c.r.JumpTo(ctx, vp)
}

type fixture struct {
	persister *Persister
	layers    *layer.Registry
	plugins   *plugin.Manager
	basemaps  *fakeBasemaps
	renderer  *memrender.Renderer
	bus       *event.Bus
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mr := memrender.New()
	provider := render.Static(mr)
	bus := event.NewBus()
	layers := layer.NewRegistry(provider, bus)
	plugins := plugin.NewManager(plugin.Deps{Renderer: provider, Layers: layers, Bus: bus})
	basemaps := &fakeBasemaps{current: "streets"}

	clock := func() time.Time { return time.UnixMilli(1700000000000) }
	opts = append([]Option{WithClock(clock)}, opts...)
	p := NewPersister(Deps{
		Layers:   layers,
		Plugins:  plugins,
		Basemaps: basemaps,
		Camera:   rendererCamera{mr},
		Bus:      bus,
	}, opts...)

	t.Cleanup(func() { plugins.Clear(context.Background()) })
	return &fixture{persister: p, layers: layers, plugins: plugins, basemaps: basemaps, renderer: mr, bus: bus}
}

func lineLayer(id string) layer.Declaration {
	return layer.Native(id, layer.CategoryOverlay,
		render.SourceSpec{ID: id + "-src", Type: "geojson"},
		render.LayerSpec{ID: id + "-line", Type: render.LayerLine},
	)
}

func storePlugin(id string) plugin.Declaration {
	return plugin.Declaration{
		ID:      id,
		Version: "1.0.0",
		OnRegister: func(context.Context, *plugin.Context) (plugin.Cleanup, error) {
			return nil, nil
		},
	}
}

func TestPersister_CaptureAndHydrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	title := layer.Metadata{Title: "Roads"}
	if err := f.layers.Register(ctx, lineLayer("roads").WithMetadata(title), layer.RegisterOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := f.layers.Register(ctx, lineLayer("rivers"), layer.RegisterOptions{}); err != nil {
		t.Fatal(err)
	}
	_ = f.layers.SetOpacity(ctx, "rivers", 0.4)
	if err := f.plugins.Register(ctx, storePlugin("measure")); err != nil {
		t.Fatal(err)
	}
	store, _ := f.plugins.Store("measure")
	_ = store.Set("units", "metric")
	_ = f.renderer.JumpTo(ctx, render.Viewport{Center: [2]float64{5, 6}, Zoom: 9})

	var captured int
	f.bus.Subscribe(event.TypeSnapshotCaptured, func(event.Event) { captured++ })

	snap, err := f.persister.Capture(map[string]any{"note": "x"})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if captured != 1 {
		t.Errorf("snapshot.captured published %d times", captured)
	}
	if snap.Version != CurrentVersion || snap.Timestamp != 1700000000000 || snap.Basemap != "streets" {
		t.Errorf("snapshot header = %d/%d/%q", snap.Version, snap.Timestamp, snap.Basemap)
	}
	if snap.Viewport.Zoom != 9 {
		t.Errorf("Viewport = %+v", snap.Viewport)
	}
	if len(snap.Layers) != 2 || snap.Layers[0].ID != "roads" || snap.Layers[1].Opacity != 0.4 {
		t.Fatalf("Layers = %+v", snap.Layers)
	}
	if snap.Layers[0].Metadata == nil || snap.Layers[0].Metadata.Title != "Roads" {
		t.Errorf("roads metadata = %+v", snap.Layers[0].Metadata)
	}
	if snap.Layers[1].Metadata != nil {
		t.Errorf("rivers metadata = %+v, want nil", snap.Layers[1].Metadata)
	}
	if p, ok := snap.Plugin("measure"); !ok || p.State["units"] != "metric" {
		t.Errorf("Plugin(measure) = %+v", p)
	}

	// Diverge from the snapshot, then restore it.
	_ = f.layers.Move(ctx, "roads", layer.Top())
	_ = f.layers.SetVisibility(ctx, "roads", false)
	_ = f.layers.SetOpacity(ctx, "rivers", 1)
	store.Clear()
	_ = f.renderer.JumpTo(ctx, render.Viewport{Zoom: 1})
	f.basemaps.current = "satellite"

	res := f.persister.Hydrate(ctx, snap)
	if !res.Success || res.Err != nil {
		t.Fatalf("Hydrate() = %+v", res)
	}
	if len(res.LayerErrors) != 0 || len(res.PluginErrors) != 0 {
		t.Errorf("item errors = %v / %v", res.LayerErrors, res.PluginErrors)
	}
	if got := f.layers.IDs(); !slices.Equal(got, []string{"roads", "rivers"}) {
		t.Errorf("IDs() = %v, want persisted order", got)
	}
	if st, _ := f.layers.Get("roads"); !st.Visible {
		t.Error("roads visibility not restored")
	}
	if st, _ := f.layers.Get("rivers"); st.Opacity != 0.4 {
		t.Errorf("rivers opacity = %v, want 0.4", st.Opacity)
	}
	if v, _ := store.Get("units"); v != "metric" {
		t.Errorf("store units = %v", v)
	}
	if f.renderer.Viewport().Zoom != 9 {
		t.Errorf("viewport not restored: %+v", f.renderer.Viewport())
	}
	if !slices.Equal(f.basemaps.switches, []string{"streets"}) {
		t.Errorf("basemap switches = %v", f.basemaps.switches)
	}
	if res.Custom["note"] != "x" {
		t.Errorf("Custom = %v", res.Custom)
	}
}

func TestPersister_CaptureRejectsUnserializableCustom(t *testing.T) {
	f := newFixture(t)
	_, err := f.persister.Capture(map[string]any{"fn": func() {}})
	if !errors.Is(err, mcerrors.ErrNotSerializable) {
		t.Errorf("Capture() error = %v, want ErrNotSerializable", err)
	}
}

func TestPersister_HydratePartialFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.basemaps.fail = errors.New("style unavailable")

	doc := v2Document()
	doc["basemap"] = "satellite"
	res := f.persister.HydrateDocument(ctx, doc)

	if !res.Success {
		t.Fatalf("Hydrate() Success = false, err = %v", res.Err)
	}
	if len(res.LayerErrors) != 1 || res.LayerErrors[0].ID != "roads" {
		t.Errorf("LayerErrors = %v", res.LayerErrors)
	}
	if !errors.Is(res.LayerErrors[0], mcerrors.ErrLayerNotFound) {
		t.Errorf("layer error = %v, want ErrLayerNotFound", res.LayerErrors[0])
	}
	if len(res.PluginErrors) != 1 || !errors.Is(res.PluginErrors[0], mcerrors.ErrPluginNotFound) {
		t.Errorf("PluginErrors = %v", res.PluginErrors)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "satellite") {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}

func TestPersister_HydrateWithResolver(t *testing.T) {
	ctx := context.Background()
	var resolved []string
	f := newFixture(t, WithLayerResolver(func(ls LayerState) (layer.Declaration, bool) {
		resolved = append(resolved, ls.ID)
		return lineLayer(ls.ID), true
	}))
	if err := f.layers.Register(ctx, lineLayer("existing"), layer.RegisterOptions{}); err != nil {
		t.Fatal(err)
	}

	res := f.persister.HydrateDocument(ctx, v1Document())
	if !res.Success || len(res.LayerErrors) != 0 {
		t.Fatalf("Hydrate() = %+v", res)
	}
	if !res.Report.Migrated {
		t.Error("v1 document should be reported as migrated")
	}
	if !slices.Equal(resolved, []string{"roads"}) {
		t.Errorf("resolved = %v", resolved)
	}
	st, ok := f.layers.Get("roads")
	if !ok || st.Visible || st.Opacity != 0.5 || !st.Applied {
		t.Errorf("roads = %+v", st)
	}
	if got := f.layers.IDs(); !slices.Equal(got, []string{"existing", "roads"}) {
		t.Errorf("IDs() = %v", got)
	}
}

func TestPersister_HydrateRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	var hydrated int
	f.bus.Subscribe(event.TypeSnapshotHydrated, func(event.Event) { hydrated++ })

	doc := v2Document()
	doc["version"] = 0
	res := f.persister.HydrateDocument(context.Background(), doc)
	if res.Success || !errors.Is(res.Err, mcerrors.ErrSnapshotTooOld) {
		t.Errorf("Hydrate() = %+v", res)
	}

	res = f.persister.Hydrate(context.Background(), nil)
	if res.Success || !errors.Is(res.Err, mcerrors.ErrSnapshotInvalid) {
		t.Errorf("Hydrate(nil) = %+v", res)
	}
	if hydrated != 0 {
		t.Error("rejected snapshots must not publish snapshot.hydrated")
	}
}

func TestPersister_HydrateNewerVersionWarns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.layers.Register(ctx, lineLayer("roads"), layer.RegisterOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := f.plugins.Register(ctx, storePlugin("measure")); err != nil {
		t.Fatal(err)
	}

	doc := v2Document()
	doc["version"] = float64(CurrentVersion + 1)
	res := f.persister.HydrateDocument(ctx, doc)
	if !res.Success {
		t.Fatalf("Hydrate() err = %v", res.Err)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "newer") {
		t.Errorf("Warnings = %v", res.Warnings)
	}
}
