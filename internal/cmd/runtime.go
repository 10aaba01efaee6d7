package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Iron-Ham/mapcore/internal/config"
	"github.com/Iron-Ham/mapcore/internal/engine"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/metrics"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/persistence/store"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/render/memrender"
	"github.com/Iron-Ham/mapcore/internal/style"
)

// placeholderBasemap is loaded when the configuration declares no basemaps.
const placeholderBasemap = "blank"

// runtime is a headless map built from the configuration, backed by the
// in-memory renderer.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	collector *metrics.Collector
	renderer  *memrender.Renderer
	m         *engine.Map
}

// newLogger returns a file logger when logging is enabled and a no-op
// logger otherwise.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.Logging.ResolveDir(), cfg.Logging.Level, cfg.Logging.Rotation())
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.Open(store.Options{
		Driver: cfg.Persistence.Driver,
		Path:   cfg.Persistence.ResolvePath(),
		Format: store.Format(cfg.Persistence.Format),
	})
}

// startRuntime creates and initializes a map. initial selects the first
// basemap; it is added to the catalogue when the configuration does not
// declare it.
func startRuntime(ctx context.Context, cfg *config.Config, initial string, debug bool) (*runtime, error) {
	cat, err := cfg.Style.Catalogue()
	if err != nil {
		return nil, err
	}
	if initial == "" {
		initial = cat.Default
	}
	if initial == "" && len(cat.Basemaps) > 0 {
		initial = cat.Basemaps[0].ID
	}
	if initial == "" {
		initial = placeholderBasemap
	}
	if _, ok := cat.Lookup(initial); !ok {
		cat.Basemaps = append(cat.Basemaps, headlessBasemap(initial))
	}
	if cat.Default == "" {
		cat.Default = initial
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(cfg.Metrics.Namespace),
	}
	historySize := cfg.Engine.HistorySize
	if debug && historySize <= 0 {
		historySize = config.Default().Engine.HistorySize
	}
	factory := render.FactoryFunc(func(ctx context.Context, opts render.Options) (render.Renderer, error) {
		rt.renderer = memrender.New(memrender.WithViewport(opts.Viewport))
		return rt.renderer, nil
	})

	m, err := engine.New(factory, engine.Config{
		Renderer:         render.Options{Container: cfg.Engine.Container},
		Catalogue:        cat,
		InitialBasemap:   initial,
		Style:            cfg.Style.LoadSettings(),
		ViewportDebounce: cfg.Plugins.ViewportDebounce(),
		Debug:            debug || cfg.Engine.Debug,
		HistorySize:      historySize,
	},
		engine.WithLogger(logger),
		engine.WithStyleObserver(rt.collector.ObserveStyle),
		engine.WithLayerResolver(resolveLayer),
		engine.WithBaseContext(ctx),
	)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	rt.m = m
	rt.collector.Attach(m.Bus())

	if err := m.Init(ctx); err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}
	return rt, nil
}

// ensureBasemap makes id loadable by the style coordinator.
func (rt *runtime) ensureBasemap(id string) error {
	if id == "" {
		return nil
	}
	if _, err := rt.m.Style().Resolve(id); err == nil {
		return nil
	}
	return rt.m.Style().AddBasemap(headlessBasemap(id))
}

// restore hydrates doc into the map, declaring its basemap first.
func (rt *runtime) restore(ctx context.Context, doc map[string]any) persistence.HydrateResult {
	if id, ok := doc["basemap"].(string); ok {
		if err := rt.ensureBasemap(id); err != nil {
			rt.logger.Warn("failed to declare snapshot basemap", "basemap", id, "error", err)
		}
	}
	return rt.m.RestoreDocument(ctx, doc)
}

// Close destroys the map and closes the log.
func (rt *runtime) Close(ctx context.Context) error {
	rt.collector.Detach()
	err := rt.m.Destroy(ctx)
	return errors.Join(err, rt.logger.Close())
}

func headlessBasemap(id string) style.Basemap {
	return style.Basemap{ID: id, Name: id, URL: "memory://" + id}
}

// resolveLayer recreates native layers from their persisted state so a
// snapshot can be replayed without the application that declared them.
// Custom layers need their implementation and are not recreated.
func resolveLayer(ls persistence.LayerState) (layer.Declaration, bool) {
	var typ render.LayerType
	switch ls.Type {
	case "raster", "image":
		typ = render.LayerRaster
	case "raster-dem":
		typ = render.LayerHillshade
	case "vector", "geojson":
		typ = render.LayerLine
	default:
		return layer.Declaration{}, false
	}

	category := ls.Category
	if !category.Valid() {
		category = layer.CategoryOverlay
	}
	decl := layer.Native(ls.ID, category,
		render.SourceSpec{ID: ls.ID + "-source", Type: ls.Type},
		render.LayerSpec{ID: ls.ID, Type: typ, SourceID: ls.ID + "-source"},
	)
	if ls.Metadata != nil {
		decl = decl.WithMetadata(*ls.Metadata)
	}
	return decl, true
}
