// Package render defines the capability contract mapcore expects from an
// external map renderer, together with the declarative specs passed across
// that boundary.
//
// mapcore never draws anything itself. Everything it does to the visual map
// goes through [Renderer], which a host adapts to its concrete rendering
// engine. The memrender subpackage provides a headless implementation.
package render

import (
	"context"
	"slices"
)

// Renderer event names passed to [Renderer.On].
const (
	EventLoad    = "load"
	EventError   = "error"
	EventMove    = "move"
	EventMoveEnd = "moveend"
	EventResize  = "resize"
)

// Viewport is the camera position.
type Viewport struct {
	Center  [2]float64 `json:"center" yaml:"center"` // [lng, lat]
	Zoom    float64    `json:"zoom" yaml:"zoom"`
	Bearing float64    `json:"bearing" yaml:"bearing"`
	Pitch   float64    `json:"pitch" yaml:"pitch"`
}

// SourceSpec describes a renderer data source.
type SourceSpec struct {
	ID      string         `json:"id" yaml:"id"`
	Type    string         `json:"type" yaml:"type"` // vector, raster, geojson, raster-dem, image...
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// LayerSpec describes one renderer layer.
type LayerSpec struct {
	ID       string         `json:"id" yaml:"id"`
	Type     LayerType      `json:"type" yaml:"type"`
	SourceID string         `json:"source,omitempty" yaml:"source,omitempty"`
	Paint    map[string]any `json:"paint,omitempty" yaml:"paint,omitempty"`
	Layout   map[string]any `json:"layout,omitempty" yaml:"layout,omitempty"`
	MinZoom  float64        `json:"minzoom,omitempty" yaml:"minzoom,omitempty"`
	MaxZoom  float64        `json:"maxzoom,omitempty" yaml:"maxzoom,omitempty"`
}

// StyleSpec is what a basemap resolves to: an opaque style document plus
// an identifier the renderer can load.
type StyleSpec struct {
	ID       string         `json:"id" yaml:"id"`
	URL      string         `json:"url,omitempty" yaml:"url,omitempty"`
	Document map[string]any `json:"document,omitempty" yaml:"document,omitempty"`
}

// EventPayload is delivered to renderer event listeners.
type EventPayload struct {
	Type     string
	Viewport Viewport
	Width    int
	Height   int
	Err      error
}

// Listener receives renderer events.
type Listener func(EventPayload)

// Renderer is the imperative API of the external map renderer.
//
// Implementations are not expected to be safe for concurrent use; mapcore
// serializes calls into a renderer.
type Renderer interface {
	AddSource(ctx context.Context, spec SourceSpec) error
	RemoveSource(ctx context.Context, id string) error
	HasSource(id string) bool

	// AddLayer inserts a layer below beforeID, or on top when beforeID is "".
	AddLayer(ctx context.Context, spec LayerSpec, beforeID string) error
	RemoveLayer(ctx context.Context, id string) error
	HasLayer(id string) bool
	// MoveLayer moves id below beforeID, or to the top when beforeID is "".
	MoveLayer(ctx context.Context, id, beforeID string) error

	SetPaintProperty(ctx context.Context, layerID, name string, value any) error
	SetLayoutProperty(ctx context.Context, layerID, name string, value any) error

	// SetStyle replaces the whole style. Every source and layer previously
	// added is discarded by the renderer.
	SetStyle(ctx context.Context, style StyleSpec) error

	Viewport() Viewport
	JumpTo(ctx context.Context, vp Viewport) error

	// On registers a listener and returns a function that removes it.
	On(eventType string, l Listener) func()

	// Remove releases every resource held by the renderer.
	Remove() error
}

// Options are passed to a Factory when the engine creates its renderer.
type Options struct {
	Container string
	Style     StyleSpec
	Viewport  Viewport
	Extra     map[string]any
}

// Factory creates renderers. Create returns once the renderer has loaded
// its initial style or failed to.
type Factory interface {
	Create(ctx context.Context, opts Options) (Renderer, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, opts Options) (Renderer, error)

// Create calls f.
func (f FactoryFunc) Create(ctx context.Context, opts Options) (Renderer, error) {
	return f(ctx, opts)
}

// Provider hands out the current renderer. Renderer returns an error
// wrapping errors.ErrNotReady until the map is ready.
type Provider interface {
	Renderer() (Renderer, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Renderer, error)

// Renderer calls f.
func (f ProviderFunc) Renderer() (Renderer, error) { return f() }

// Static returns a Provider that always yields r.
func Static(r Renderer) Provider {
	return ProviderFunc(func() (Renderer, error) { return r, nil })
}

// CloneLayerSpec returns a deep-enough copy of spec for safe reuse.
func CloneLayerSpec(spec LayerSpec) LayerSpec {
	out := spec
	out.Paint = cloneMap(spec.Paint)
	out.Layout = cloneMap(spec.Layout)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LayerIDs returns the ids of specs in order.
func LayerIDs(specs []LayerSpec) []string {
	ids := make([]string, 0, len(specs))
	for _, s := range specs {
		ids = append(ids, s.ID)
	}
	return slices.Clip(ids)
}
