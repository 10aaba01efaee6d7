// Package memrender provides an in-memory, headless implementation of
// render.Renderer. It keeps the style, sources, ordered layers and their
// properties in memory, supports failure injection per operation, and emits
// renderer events the way an interactive map would.
//
// It backs the CLI's offline commands and most tests.
package memrender

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/mapcore/internal/render"
)

// Operation names used for failure injection and the call log.
const (
	OpAddSource         = "AddSource"
	OpRemoveSource      = "RemoveSource"
	OpAddLayer          = "AddLayer"
	OpRemoveLayer       = "RemoveLayer"
	OpMoveLayer         = "MoveLayer"
	OpSetPaintProperty  = "SetPaintProperty"
	OpSetLayoutProperty = "SetLayoutProperty"
	OpSetStyle          = "SetStyle"
	OpJumpTo            = "JumpTo"
	OpRemove            = "Remove"
)

// Call is one recorded renderer call.
type Call struct {
	Op     string
	Target string
}

func (c Call) String() string {
	if c.Target == "" {
		return c.Op
	}
	return c.Op + "(" + c.Target + ")"
}

type layerState struct {
	spec   render.LayerSpec
	paint  map[string]any
	layout map[string]any
}

type listener struct {
	id int
	fn render.Listener
}

// Renderer is an in-memory render.Renderer. It is safe for concurrent use.
type Renderer struct {
	mu        sync.Mutex
	style     render.StyleSpec
	sources   map[string]render.SourceSpec
	layers    []*layerState
	viewport  render.Viewport
	listeners map[string][]listener
	nextID    int
	calls     []Call
	failures  map[string]error
	removed   bool

	// basemapLayers are installed by SetStyle for the matching style id.
	basemapLayers map[string][]render.LayerSpec
	styleDelay    time.Duration
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithBasemapLayers declares layers that belong to a style and are
// installed whenever that style is loaded.
func WithBasemapLayers(styleID string, layers ...render.LayerSpec) Option {
	return func(r *Renderer) {
		r.basemapLayers[styleID] = append(r.basemapLayers[styleID], layers...)
	}
}

// WithStyleDelay makes SetStyle take d before it completes.
func WithStyleDelay(d time.Duration) Option {
	return func(r *Renderer) { r.styleDelay = d }
}

// WithViewport sets the initial camera.
func WithViewport(vp render.Viewport) Option {
	return func(r *Renderer) { r.viewport = vp }
}

// New returns an empty renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		sources:       make(map[string]render.SourceSpec),
		listeners:     make(map[string][]listener),
		failures:      make(map[string]error),
		basemapLayers: make(map[string][]render.LayerSpec),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Factory returns a render.Factory producing memory renderers configured
// with opts. The renderer loads opts' initial style before it is returned.
func Factory(opts ...Option) render.Factory {
	return render.FactoryFunc(func(ctx context.Context, o render.Options) (render.Renderer, error) {
		r := New(opts...)
		r.viewport = o.Viewport
		if o.Style.ID != "" || o.Style.URL != "" {
			if err := r.SetStyle(ctx, o.Style); err != nil {
				return nil, err
			}
		}
		return r, nil
	})
}

// Fail makes the next calls of op on target return err. An empty target
// matches every target. A nil err clears the injection.
func (r *Renderer) Fail(op, target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := op + ":" + target
	if err == nil {
		delete(r.failures, key)
		return
	}
	r.failures[key] = err
}

// ClearFailures removes every injected failure.
func (r *Renderer) ClearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = make(map[string]error)
}

// check records the call and returns the injected failure, if any.
// Callers hold r.mu.
func (r *Renderer) check(op, target string) error {
	r.calls = append(r.calls, Call{Op: op, Target: target})
	if r.removed && op != OpRemove {
		return fmt.Errorf("memrender: %s on removed renderer", op)
	}
	if err, ok := r.failures[op+":"+target]; ok {
		return err
	}
	if err, ok := r.failures[op+":"]; ok {
		return err
	}
	return nil
}

func (r *Renderer) AddSource(_ context.Context, spec render.SourceSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpAddSource, spec.ID); err != nil {
		return err
	}
	if _, ok := r.sources[spec.ID]; ok {
		return fmt.Errorf("memrender: source %q already exists", spec.ID)
	}
	r.sources[spec.ID] = spec
	return nil
}

func (r *Renderer) RemoveSource(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpRemoveSource, id); err != nil {
		return err
	}
	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("memrender: source %q not found", id)
	}
	for _, l := range r.layers {
		if l.spec.SourceID == id {
			return fmt.Errorf("memrender: source %q is used by layer %q", id, l.spec.ID)
		}
	}
	delete(r.sources, id)
	return nil
}

func (r *Renderer) HasSource(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sources[id]
	return ok
}

func (r *Renderer) AddLayer(_ context.Context, spec render.LayerSpec, beforeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpAddLayer, spec.ID); err != nil {
		return err
	}
	if r.indexOf(spec.ID) >= 0 {
		return fmt.Errorf("memrender: layer %q already exists", spec.ID)
	}
	if spec.SourceID != "" {
		if _, ok := r.sources[spec.SourceID]; !ok {
			return fmt.Errorf("memrender: layer %q references missing source %q", spec.ID, spec.SourceID)
		}
	}
	spec = render.CloneLayerSpec(spec)
	ls := &layerState{spec: spec, paint: cloneProps(spec.Paint), layout: cloneProps(spec.Layout)}
	return r.insert(ls, beforeID)
}

func (r *Renderer) insert(ls *layerState, beforeID string) error {
	if beforeID == "" {
		r.layers = append(r.layers, ls)
		return nil
	}
	idx := r.indexOf(beforeID)
	if idx < 0 {
		return fmt.Errorf("memrender: before layer %q not found", beforeID)
	}
	r.layers = slices.Insert(r.layers, idx, ls)
	return nil
}

func (r *Renderer) RemoveLayer(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpRemoveLayer, id); err != nil {
		return err
	}
	idx := r.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("memrender: layer %q not found", id)
	}
	r.layers = slices.Delete(r.layers, idx, idx+1)
	return nil
}

func (r *Renderer) HasLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOf(id) >= 0
}

func (r *Renderer) MoveLayer(_ context.Context, id, beforeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpMoveLayer, id); err != nil {
		return err
	}
	idx := r.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("memrender: layer %q not found", id)
	}
	if beforeID == id {
		return nil
	}
	if beforeID != "" && r.indexOf(beforeID) < 0 {
		return fmt.Errorf("memrender: before layer %q not found", beforeID)
	}
	ls := r.layers[idx]
	r.layers = slices.Delete(r.layers, idx, idx+1)
	return r.insert(ls, beforeID)
}

func (r *Renderer) SetPaintProperty(_ context.Context, layerID, name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpSetPaintProperty, layerID); err != nil {
		return err
	}
	idx := r.indexOf(layerID)
	if idx < 0 {
		return fmt.Errorf("memrender: layer %q not found", layerID)
	}
	r.layers[idx].paint[name] = value
	return nil
}

func (r *Renderer) SetLayoutProperty(_ context.Context, layerID, name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpSetLayoutProperty, layerID); err != nil {
		return err
	}
	idx := r.indexOf(layerID)
	if idx < 0 {
		return fmt.Errorf("memrender: layer %q not found", layerID)
	}
	r.layers[idx].layout[name] = value
	return nil
}

// SetStyle discards every source and layer, then installs the basemap
// layers declared for style.ID. It emits "load" on success and "error" on
// an injected failure.
func (r *Renderer) SetStyle(ctx context.Context, style render.StyleSpec) error {
	r.mu.Lock()
	delay := r.styleDelay
	err := r.check(OpSetStyle, style.ID)
	r.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		r.emit(render.EventPayload{Type: render.EventError, Err: err})
		return err
	}

	r.mu.Lock()
	r.style = style
	r.sources = make(map[string]render.SourceSpec)
	r.layers = nil
	for _, spec := range r.basemapLayers[style.ID] {
		spec = render.CloneLayerSpec(spec)
		r.layers = append(r.layers, &layerState{spec: spec, paint: cloneProps(spec.Paint), layout: cloneProps(spec.Layout)})
	}
	vp := r.viewport
	r.mu.Unlock()

	r.emit(render.EventPayload{Type: render.EventLoad, Viewport: vp})
	return nil
}

func (r *Renderer) Viewport() render.Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport
}

// JumpTo moves the camera and emits "move" followed by "moveend".
func (r *Renderer) JumpTo(_ context.Context, vp render.Viewport) error {
	r.mu.Lock()
	if err := r.check(OpJumpTo, ""); err != nil {
		r.mu.Unlock()
		return err
	}
	r.viewport = vp
	r.mu.Unlock()

	r.emit(render.EventPayload{Type: render.EventMove, Viewport: vp})
	r.emit(render.EventPayload{Type: render.EventMoveEnd, Viewport: vp})
	return nil
}

// Pan emits a sequence of "move" events ending at vp, then one "moveend".
// It simulates a user drag.
func (r *Renderer) Pan(steps ...render.Viewport) {
	for _, vp := range steps {
		r.mu.Lock()
		r.viewport = vp
		r.mu.Unlock()
		r.emit(render.EventPayload{Type: render.EventMove, Viewport: vp})
	}
	r.emit(render.EventPayload{Type: render.EventMoveEnd, Viewport: r.Viewport()})
}

// Resize emits a "resize" event.
func (r *Renderer) Resize(width, height int) {
	r.emit(render.EventPayload{Type: render.EventResize, Width: width, Height: height})
}

// EmitError emits an "error" event carrying err.
func (r *Renderer) EmitError(err error) {
	r.emit(render.EventPayload{Type: render.EventError, Err: err})
}

func (r *Renderer) On(eventType string, fn render.Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[eventType] = append(r.listeners[eventType], listener{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.listeners[eventType] = slices.DeleteFunc(r.listeners[eventType], func(l listener) bool {
			return l.id == id
		})
	}
}

// ListenerCount returns how many listeners are registered for eventType.
func (r *Renderer) ListenerCount(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[eventType])
}

func (r *Renderer) emit(p render.EventPayload) {
	r.mu.Lock()
	ls := slices.Clone(r.listeners[p.Type])
	r.mu.Unlock()
	for _, l := range ls {
		l.fn(p)
	}
}

// Remove drops every resource. Later calls fail.
func (r *Renderer) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(OpRemove, ""); err != nil {
		return err
	}
	r.removed = true
	r.sources = make(map[string]render.SourceSpec)
	r.layers = nil
	r.listeners = make(map[string][]listener)
	return nil
}

// Removed reports whether Remove has been called.
func (r *Renderer) Removed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed
}

// Style returns the loaded style.
func (r *Renderer) Style() render.StyleSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style
}

// LayerOrder returns layer ids bottom to top.
func (r *Renderer) LayerOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.layers))
	for _, l := range r.layers {
		ids = append(ids, l.spec.ID)
	}
	return ids
}

// SourceIDs returns the ids of every source, sorted.
func (r *Renderer) SourceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Paint returns a paint property of a layer.
func (r *Renderer) Paint(layerID, name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(layerID)
	if idx < 0 {
		return nil, false
	}
	v, ok := r.layers[idx].paint[name]
	return v, ok
}

// Layout returns a layout property of a layer.
func (r *Renderer) Layout(layerID, name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOf(layerID)
	if idx < 0 {
		return nil, false
	}
	v, ok := r.layers[idx].layout[name]
	return v, ok
}

// Calls returns the recorded call log.
func (r *Renderer) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallCount returns how many times op was called.
func (r *Renderer) CallCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (r *Renderer) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Renderer) indexOf(id string) int {
	return slices.IndexFunc(r.layers, func(l *layerState) bool { return l.spec.ID == id })
}

func cloneProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ render.Renderer = (*Renderer)(nil)
