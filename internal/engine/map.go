package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/lifecycle"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/persistence"
	"github.com/Iron-Ham/mapcore/internal/plugin"
	"github.com/Iron-Ham/mapcore/internal/render"
	"github.com/Iron-Ham/mapcore/internal/style"
)

// Config holds the engine settings. The zero value is usable once a
// Factory is supplied to New.
type Config struct {
	// Renderer is passed to the factory. Its Style is ignored when the
	// catalogue is non-empty; the initial basemap is loaded instead.
	Renderer render.Options

	// Catalogue lists the basemaps; InitialBasemap defaults to its default.
	Catalogue      style.Catalogue
	InitialBasemap string
	Style          style.Config

	// ViewportDebounce overrides plugin.DefaultViewportDebounce when > 0.
	ViewportDebounce time.Duration

	// Debug enables the bus history with HistorySize entries.
	Debug       bool
	HistorySize int
}

// Map owns the renderer, the registries and the lifecycle of one map
// instance.
type Map struct {
	cfg     Config
	factory render.Factory
	logger  *logging.Logger

	bus       *event.Bus
	machine   *lifecycle.Machine
	layers    *layer.Registry
	plugins   *plugin.Manager
	style     *style.Coordinator
	persister *persistence.Persister

	mu          sync.Mutex
	renderer    render.Renderer
	rendererOff []func()
	cleanups    []Cleanup

	switchMu  sync.Mutex
	destroyMu sync.Mutex
}

// Cleanup is run during Destroy, after the registries are cleared.
type Cleanup func(ctx context.Context) error

// Option configures a Map.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	interaction plugin.Interaction
	observers   []style.Observer
	resolver    persistence.LayerResolver
	migrator    *persistence.Migrator
	baseCtx     context.Context
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInteraction sets the cursor and keyboard collaborators handed to
// plugins.
func WithInteraction(i plugin.Interaction) Option {
	return func(o *options) { o.interaction = i }
}

// WithStyleObserver adds an observer of basemap loads.
func WithStyleObserver(fn style.Observer) Option {
	return func(o *options) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithLayerResolver sets how Restore recreates layers missing from the
// registry.
func WithLayerResolver(fn persistence.LayerResolver) Option {
	return func(o *options) { o.resolver = fn }
}

// WithMigrator replaces the default snapshot migrator.
func WithMigrator(m *persistence.Migrator) Option {
	return func(o *options) { o.migrator = m }
}

// WithBaseContext sets the context used by bus-driven plugin hooks.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) { o.baseCtx = ctx }
}

// New wires the components of a map. Nothing touches the renderer until
// Init.
func New(factory render.Factory, cfg Config, opts ...Option) (*Map, error) {
	if factory == nil {
		return nil, mcerrors.NewValidationError("renderer factory is required").WithField("factory")
	}
	if len(cfg.Catalogue.Basemaps) > 0 {
		if err := cfg.Catalogue.Validate(); err != nil {
			return nil, err
		}
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	busOpts := []event.Option{event.WithLogger(logger)}
	if cfg.Debug {
		busOpts = append(busOpts, event.WithDebug(cfg.HistorySize))
	}

	m := &Map{
		cfg:     cfg,
		factory: factory,
		logger:  logger.WithComponent("engine"),
		bus:     event.NewBus(busOpts...),
	}
	m.machine = lifecycle.NewMachine(m.bus, logger)

	// The coordinator loads the initial basemap while the map is still
	// creating, so it gets the unchecked renderer.
	raw := render.ProviderFunc(m.currentRenderer)
	styleOpts := []style.Option{style.WithLogger(logger)}
	if observers := o.observers; len(observers) > 0 {
		styleOpts = append(styleOpts, style.WithObserver(func(res style.Result) {
			for _, fn := range observers {
				fn(res)
			}
		}))
	}
	m.style = style.NewCoordinator(raw, cfg.Catalogue, cfg.Style, styleOpts...)

	m.layers = layer.NewRegistry(m, m.bus, layer.WithLogger(logger))

	pluginOpts := []plugin.Option{plugin.WithLogger(logger)}
	if cfg.ViewportDebounce > 0 {
		pluginOpts = append(pluginOpts, plugin.WithViewportDebounce(cfg.ViewportDebounce))
	}
	if o.baseCtx != nil {
		pluginOpts = append(pluginOpts, plugin.WithBaseContext(o.baseCtx))
	}
	m.plugins = plugin.NewManager(plugin.Deps{
		Renderer:    m,
		Layers:      m.layers,
		Style:       m.style,
		Bus:         m.bus,
		Interaction: o.interaction,
	}, pluginOpts...)

	persistOpts := []persistence.Option{persistence.WithLogger(logger), persistence.WithMigrator(o.migrator)}
	if o.resolver != nil {
		persistOpts = append(persistOpts, persistence.WithLayerResolver(o.resolver))
	}
	m.persister = persistence.NewPersister(persistence.Deps{
		Layers:   m.layers,
		Plugins:  m.plugins,
		Basemaps: m,
		Camera:   m,
		Bus:      m.bus,
	}, persistOpts...)

	return m, nil
}

// Init creates the renderer, loads the initial basemap and enters the ready
// state. Registered layers are then applied and plugins notified.
func (m *Map) Init(ctx context.Context) error {
	if err := m.machine.Transition(lifecycle.StateCreating); err != nil {
		return err
	}
	start := time.Now()

	opts := m.cfg.Renderer
	if len(m.cfg.Catalogue.Basemaps) > 0 {
		opts.Style = render.StyleSpec{}
	}
	rend, err := m.factory.Create(ctx, opts)
	if err != nil {
		rerr := mcerrors.NewRendererError("create renderer", fmt.Errorf("%w: %w", mcerrors.ErrRendererInit, err)).
			WithOperation("create").
			WithCode(mcerrors.CodeRendererInit)
		return m.failInit(rerr)
	}

	m.mu.Lock()
	m.renderer = rend
	m.mu.Unlock()
	m.bindRenderer(rend)

	if len(m.cfg.Catalogue.Basemaps) > 0 {
		if err := m.style.Load(ctx, m.cfg.InitialBasemap); err != nil {
			m.bus.Publish(event.NewStyleErrorEvent(m.cfg.InitialBasemap, false, err))
			return m.failInit(err)
		}
	}

	if err := m.machine.Transition(lifecycle.StateReady); err != nil {
		return err
	}
	m.logger.Info("map ready", "basemap", m.style.Current(), "duration_ms", time.Since(start).Milliseconds())

	if res := m.layers.ApplyAll(ctx); !res.OK() {
		m.logger.Warn("layers failed to apply on init", "failed", len(res.Errors), "applied", res.Processed)
	}
	m.plugins.NotifyMapReady(ctx)
	return nil
}

func (m *Map) failInit(err error) error {
	m.logger.Error("map initialization failed", "error", err)
	m.bus.Publish(event.NewErrorEvent(err))
	if terr := m.machine.Fail(err); terr != nil {
		return terr
	}
	return err
}

// bindRenderer forwards renderer events onto the bus.
func (m *Map) bindRenderer(rend render.Renderer) {
	offs := []func(){
		rend.On(render.EventMove, func(p render.EventPayload) {
			m.bus.Publish(event.NewViewportEvent(p.Viewport, false))
		}),
		rend.On(render.EventMoveEnd, func(p render.EventPayload) {
			m.bus.Publish(event.NewViewportEvent(p.Viewport, true))
		}),
		rend.On(render.EventResize, func(p render.EventPayload) {
			m.bus.Publish(event.NewResizeEvent(p.Width, p.Height))
		}),
		rend.On(render.EventError, func(p render.EventPayload) {
			if p.Err == nil {
				return
			}
			m.bus.Publish(event.NewErrorEvent(mcerrors.NewRendererError("renderer error", p.Err).
				WithCode(mcerrors.CodeRendererError).
				WithRecoverable(true)))
		}),
	}
	m.mu.Lock()
	m.rendererOff = append(m.rendererOff, offs...)
	m.mu.Unlock()
}

// Renderer returns the renderer once the map is ready. Before that, and
// after Destroy, it returns an error wrapping errors.ErrNotReady.
func (m *Map) Renderer() (render.Renderer, error) {
	if st := m.machine.State(); st != lifecycle.StateReady {
		return nil, mcerrors.NewLifecycleError(fmt.Sprintf("renderer accessed in state %s", st), mcerrors.ErrNotReady)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer == nil {
		return nil, mcerrors.NewLifecycleError("renderer released", mcerrors.ErrNotReady)
	}
	return m.renderer, nil
}

// currentRenderer returns the renderer regardless of lifecycle state.
func (m *Map) currentRenderer() (render.Renderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer == nil {
		return nil, mcerrors.NewLifecycleError("renderer not created", mcerrors.ErrNotReady)
	}
	return m.renderer, nil
}

// State returns the lifecycle state.
func (m *Map) State() lifecycle.State { return m.machine.State() }

// IsReady reports whether the map is ready.
func (m *Map) IsReady() bool { return m.machine.IsReady() }

// WaitReady blocks until Init finishes. See lifecycle.Machine.WaitReady.
func (m *Map) WaitReady(ctx context.Context) error { return m.machine.WaitReady(ctx) }

// Bus returns the event bus.
func (m *Map) Bus() *event.Bus { return m.bus }

// Layers returns the layer registry.
func (m *Map) Layers() *layer.Registry { return m.layers }

// Plugins returns the plugin manager.
func (m *Map) Plugins() *plugin.Manager { return m.plugins }

// Style returns the style coordinator.
func (m *Map) Style() *style.Coordinator { return m.style }

// Persister returns the snapshot persister.
func (m *Map) Persister() *persistence.Persister { return m.persister }

// AddLayer registers a layer. It is applied at once when the map is ready.
func (m *Map) AddLayer(ctx context.Context, decl layer.Declaration, opts layer.RegisterOptions) error {
	if m.machine.IsDestroyed() {
		return mcerrors.NewLifecycleError("add layer", mcerrors.ErrDestroyed)
	}
	return m.layers.Register(ctx, decl, opts)
}

// RemoveLayer unregisters a layer and reports whether it existed.
func (m *Map) RemoveLayer(ctx context.Context, id string) bool {
	return m.layers.Remove(ctx, id)
}

// RegisterPlugin registers a plugin.
func (m *Map) RegisterPlugin(ctx context.Context, decl plugin.Declaration) error {
	if m.machine.IsDestroyed() {
		return mcerrors.NewLifecycleError("register plugin", mcerrors.ErrDestroyed)
	}
	return m.plugins.Register(ctx, decl)
}

// UnregisterPlugin unregisters a plugin.
func (m *Map) UnregisterPlugin(ctx context.Context, id string) error {
	return m.plugins.Unregister(ctx, id)
}

// Basemap returns the id of the loaded basemap.
func (m *Map) Basemap() string { return m.style.Current() }

// Viewport returns the renderer's camera.
func (m *Map) Viewport() (render.Viewport, error) {
	r, err := m.Renderer()
	if err != nil {
		return render.Viewport{}, err
	}
	return r.Viewport(), nil
}

// JumpTo moves the camera.
func (m *Map) JumpTo(ctx context.Context, vp render.Viewport) error {
	r, err := m.Renderer()
	if err != nil {
		return err
	}
	return r.JumpTo(ctx, vp)
}

// AddCleanup registers fn to run during Destroy. Cleanups run in reverse
// order of registration.
func (m *Map) AddCleanup(fn Cleanup) error {
	if fn == nil {
		return mcerrors.NewValidationError("cleanup is nil").WithField("fn")
	}
	if m.machine.IsDestroyed() {
		return mcerrors.NewLifecycleError("add cleanup", mcerrors.ErrDestroyed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, fn)
	return nil
}

// Snapshot captures the current state.
func (m *Map) Snapshot(custom map[string]any) (*persistence.Snapshot, error) {
	if m.machine.IsDestroyed() {
		return nil, mcerrors.NewLifecycleError("snapshot", mcerrors.ErrDestroyed)
	}
	return m.persister.Capture(custom)
}

// Restore hydrates s. Restoring before the map is ready updates registry
// state only; layers are applied by Init.
func (m *Map) Restore(ctx context.Context, s *persistence.Snapshot) persistence.HydrateResult {
	if m.machine.IsDestroyed() {
		return persistence.HydrateResult{Err: mcerrors.NewLifecycleError("restore", mcerrors.ErrDestroyed)}
	}
	return m.persister.Hydrate(ctx, s)
}

// RestoreDocument validates, migrates and hydrates a raw snapshot document.
func (m *Map) RestoreDocument(ctx context.Context, doc map[string]any) persistence.HydrateResult {
	if m.machine.IsDestroyed() {
		return persistence.HydrateResult{Err: mcerrors.NewLifecycleError("restore", mcerrors.ErrDestroyed)}
	}
	return m.persister.HydrateDocument(ctx, doc)
}
