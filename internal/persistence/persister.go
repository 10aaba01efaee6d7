package persistence

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/plugin"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// Layers is the part of the layer registry used for capture and hydration.
type Layers interface {
	All() []layer.State
	Declaration(id string) (layer.Declaration, bool)
	Has(id string) bool
	Register(ctx context.Context, decl layer.Declaration, opts layer.RegisterOptions) error
	SetVisibility(ctx context.Context, id string, visible bool) error
	SetOpacity(ctx context.Context, id string, opacity float64) error
	Move(ctx context.Context, id string, pos layer.Position) error
	Get(id string) (layer.State, bool)
}

// Plugins is the part of the plugin manager used for capture and hydration.
type Plugins interface {
	All() []plugin.State
	Has(id string) bool
	Serialize(id string) (map[string]any, error)
	Hydrate(ctx context.Context, id string, state map[string]any, fromVersion int) error
}

// Basemaps reports and switches the active basemap.
type Basemaps interface {
	Basemap() string
	SetBasemap(ctx context.Context, id string) error
}

// Camera reads and moves the viewport.
type Camera interface {
	Viewport() (render.Viewport, error)
	JumpTo(ctx context.Context, vp render.Viewport) error
}

// LayerResolver builds a declaration for a persisted layer that is not
// registered. It returns false when the layer cannot be recreated.
type LayerResolver func(ls LayerState) (layer.Declaration, bool)

// Deps are the collaborators of a Persister. Layers and Plugins are
// required; the rest may be nil.
type Deps struct {
	Layers   Layers
	Plugins  Plugins
	Basemaps Basemaps
	Camera   Camera
	Bus      *event.Bus
}

// ItemError is a per-layer or per-plugin hydration failure.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }

func (e ItemError) Unwrap() error { return e.Err }

// HydrateResult is the outcome of Hydrate. Success is false only when the
// snapshot itself was rejected; per-item failures leave it true.
type HydrateResult struct {
	Success      bool
	Err          error
	Report       Report
	LayerErrors  []ItemError
	PluginErrors []ItemError
	Warnings     []string
	Custom       map[string]any
}

// Persister captures live state into snapshots and restores it.
type Persister struct {
	deps     Deps
	migrator *Migrator
	resolver LayerResolver
	now      func() time.Time
	logger   *logging.Logger
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Persister) { p.logger = logging.OrNop(l).WithComponent("persistence") }
}

// WithMigrator replaces the default migrator.
func WithMigrator(m *Migrator) Option {
	return func(p *Persister) {
		if m != nil {
			p.migrator = m
		}
	}
}

// WithLayerResolver sets the resolver for layers missing from the registry.
func WithLayerResolver(fn LayerResolver) Option {
	return func(p *Persister) { p.resolver = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPersister creates a Persister.
func NewPersister(deps Deps, opts ...Option) *Persister {
	p := &Persister{
		deps:     deps,
		migrator: DefaultMigrator(),
		now:      time.Now,
		logger:   logging.NopLogger().WithComponent("persistence"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Migrator returns the migrator used by Hydrate.
func (p *Persister) Migrator() *Migrator { return p.migrator }

// Capture returns a snapshot of the current state. Plugins whose serializer
// fails are left out; the manager has already reported the failure.
// custom must be JSON-serializable.
func (p *Persister) Capture(custom map[string]any) (*Snapshot, error) {
	if custom != nil {
		if _, err := json.Marshal(custom); err != nil {
			return nil, mcerrors.NewValidationError("custom payload is not serializable").
				WithField("custom").WithCause(fmt.Errorf("%w: %w", mcerrors.ErrNotSerializable, err))
		}
	}

	s := &Snapshot{
		Version:   CurrentVersion,
		Timestamp: p.now().UnixMilli(),
		Layers:    []LayerState{},
		Plugins:   []PluginState{},
		Custom:    custom,
	}
	if p.deps.Basemaps != nil {
		s.Basemap = p.deps.Basemaps.Basemap()
	}
	if p.deps.Camera != nil {
		if vp, err := p.deps.Camera.Viewport(); err == nil {
			s.Viewport = vp
		}
	}

	for _, st := range p.deps.Layers.All() {
		ls := LayerState{
			ID:       st.ID,
			Type:     st.Type,
			Visible:  st.Visible,
			Opacity:  st.Opacity,
			Order:    st.Order,
			Category: st.Category,
		}
		if decl, ok := p.deps.Layers.Declaration(st.ID); ok && !decl.Metadata.IsZero() {
			md := decl.Metadata
			ls.Metadata = &md
		}
		s.Layers = append(s.Layers, ls)
	}

	for _, st := range p.deps.Plugins.All() {
		state, err := p.deps.Plugins.Serialize(st.ID)
		if err != nil {
			p.logger.Warn("plugin state not captured", "plugin_id", st.ID, "error", err)
			continue
		}
		if state == nil {
			state = map[string]any{}
		}
		s.Plugins = append(s.Plugins, PluginState{
			ID:            st.ID,
			Version:       st.Version,
			SchemaVersion: st.SchemaVersion,
			State:         state,
		})
	}

	p.logger.Info("snapshot captured", "layers", len(s.Layers), "plugins", len(s.Plugins), "basemap", s.Basemap)
	p.publish(event.NewSnapshotEvent(event.TypeSnapshotCaptured, s.Version, s.Basemap, len(s.Layers), len(s.Plugins)))
	return s, nil
}

// HydrateDocument validates and migrates doc, then hydrates it.
func (p *Persister) HydrateDocument(ctx context.Context, doc map[string]any) HydrateResult {
	s, report, err := Parse(doc, p.migrator)
	if err != nil {
		p.logger.Error("snapshot rejected", "error", err, "version", report.Version)
		return HydrateResult{Err: err, Report: report, Warnings: report.Warnings}
	}
	res := p.hydrate(ctx, s)
	res.Report = report
	res.Warnings = append(slices.Clone(report.Warnings), res.Warnings...)
	return res
}

// Hydrate restores s. The snapshot is round-tripped through its document
// form so that older versions are migrated and malformed ones rejected.
func (p *Persister) Hydrate(ctx context.Context, s *Snapshot) HydrateResult {
	if s == nil {
		err := mcerrors.NewPersistenceError("hydrate", fmt.Errorf("%w: nil snapshot", mcerrors.ErrSnapshotInvalid))
		return HydrateResult{Err: err}
	}
	doc, err := ToDocument(s)
	if err != nil {
		return HydrateResult{Err: err}
	}
	return p.HydrateDocument(ctx, doc)
}

// hydrate applies a validated snapshot: basemap, layers in persisted
// order, plugin state, then the viewport.
func (p *Persister) hydrate(ctx context.Context, s *Snapshot) HydrateResult {
	res := HydrateResult{Success: true, Custom: s.Custom}

	if p.deps.Basemaps != nil && s.Basemap != "" && s.Basemap != p.deps.Basemaps.Basemap() {
		if err := p.deps.Basemaps.SetBasemap(ctx, s.Basemap); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("basemap %q not restored: %v", s.Basemap, err))
		}
	}

	p.hydrateLayers(ctx, s, &res)
	p.hydratePlugins(ctx, s, &res)

	if p.deps.Camera != nil {
		if err := p.deps.Camera.JumpTo(ctx, s.Viewport); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("viewport not restored: %v", err))
		}
	}

	p.logger.Info("snapshot hydrated",
		"version", s.Version,
		"layer_errors", len(res.LayerErrors),
		"plugin_errors", len(res.PluginErrors),
		"warnings", len(res.Warnings),
	)
	p.publish(event.NewSnapshotEvent(event.TypeSnapshotHydrated, s.Version, s.Basemap, len(s.Layers), len(s.Plugins)))
	return res
}

func (p *Persister) hydrateLayers(ctx context.Context, s *Snapshot, res *HydrateResult) {
	ordered := slices.SortedStableFunc(slices.Values(s.Layers), func(a, b LayerState) int {
		return cmp.Compare(a.Order, b.Order)
	})

	restored := make([]string, 0, len(ordered))
	for _, ls := range ordered {
		if p.deps.Layers.Has(ls.ID) {
			if err := p.deps.Layers.SetVisibility(ctx, ls.ID, ls.Visible); err != nil {
				res.LayerErrors = append(res.LayerErrors, ItemError{ID: ls.ID, Err: err})
				continue
			}
			if err := p.deps.Layers.SetOpacity(ctx, ls.ID, ls.Opacity); err != nil {
				res.LayerErrors = append(res.LayerErrors, ItemError{ID: ls.ID, Err: err})
				continue
			}
			restored = append(restored, ls.ID)
			continue
		}

		decl, ok := p.resolve(ls)
		if !ok {
			res.LayerErrors = append(res.LayerErrors, ItemError{
				ID:  ls.ID,
				Err: mcerrors.NewNotFoundError("layer", ls.ID).WithCause(mcerrors.ErrLayerNotFound),
			})
			continue
		}
		visible, opacity := ls.Visible, ls.Opacity
		err := p.deps.Layers.Register(ctx, decl, layer.RegisterOptions{
			Position: layer.Top(),
			Visible:  &visible,
			Opacity:  &opacity,
		})
		if err != nil {
			res.LayerErrors = append(res.LayerErrors, ItemError{ID: ls.ID, Err: err})
			continue
		}
		if st, ok := p.deps.Layers.Get(ls.ID); ok && st.Error != "" {
			res.LayerErrors = append(res.LayerErrors, ItemError{
				ID:  ls.ID,
				Err: mcerrors.NewLayerError(st.Error, mcerrors.ErrLayerApply).WithLayerID(ls.ID),
			})
		}
		restored = append(restored, ls.ID)
	}

	// Moving each restored layer to the top in persisted order leaves them
	// in that order above any layer the snapshot does not mention.
	for _, id := range restored {
		if err := p.deps.Layers.Move(ctx, id, layer.Top()); err != nil {
			res.LayerErrors = append(res.LayerErrors, ItemError{ID: id, Err: err})
		}
	}
}

func (p *Persister) resolve(ls LayerState) (layer.Declaration, bool) {
	if p.resolver == nil {
		return layer.Declaration{}, false
	}
	decl, ok := p.resolver(ls)
	if !ok {
		return layer.Declaration{}, false
	}
	if decl.ID == "" {
		decl.ID = ls.ID
	}
	if decl.Category == "" {
		decl.Category = ls.Category
	}
	if decl.Metadata.IsZero() && ls.Metadata != nil {
		decl.Metadata = *ls.Metadata
	}
	return decl, true
}

func (p *Persister) hydratePlugins(ctx context.Context, s *Snapshot, res *HydrateResult) {
	for _, ps := range s.Plugins {
		if !p.deps.Plugins.Has(ps.ID) {
			res.PluginErrors = append(res.PluginErrors, ItemError{
				ID:  ps.ID,
				Err: mcerrors.NewNotFoundError("plugin", ps.ID).WithCause(mcerrors.ErrPluginNotFound),
			})
			continue
		}
		state := ps.State
		if state == nil {
			state = map[string]any{}
		}
		if err := p.deps.Plugins.Hydrate(ctx, ps.ID, state, ps.SchemaVersion); err != nil {
			res.PluginErrors = append(res.PluginErrors, ItemError{ID: ps.ID, Err: err})
		}
	}
}

func (p *Persister) publish(e event.Event) {
	if p.deps.Bus != nil {
		p.deps.Bus.Publish(e)
	}
}
