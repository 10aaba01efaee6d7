package layer

import (
	"context"
	"slices"
	"sync"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/logging"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// RegisterOptions override declaration metadata at registration time.
type RegisterOptions struct {
	Position Position
	Visible  *bool
	Opacity  *float64
}

// entry holds a declaration and its runtime state together.
type entry struct {
	decl  Declaration
	state State
}

// Registry is the ordered collection of layer declarations and the single
// place that applies them to the renderer.
//
// The registry's tables are guarded by a mutex that is never held across
// renderer calls or event publishes, so handlers may call back into it.
type Registry struct {
	mu    sync.RWMutex
	order []*entry
	byID  map[string]*entry

	renderer render.Provider
	bus      *event.Bus
	logger   *logging.Logger

	// hold defers apply-on-register while the renderer style is being
	// replaced; inflight counts registrations currently applying.
	holdMu   sync.Mutex
	holdCond *sync.Cond
	held     bool
	inflight int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(l).WithComponent("layers") }
}

// NewRegistry creates an empty registry. provider yields the renderer once
// the map is ready; bus may be nil.
func NewRegistry(provider render.Provider, bus *event.Bus, opts ...Option) *Registry {
	r := &Registry{
		byID:     make(map[string]*entry),
		renderer: provider,
		bus:      bus,
		logger:   logging.NopLogger(),
	}
	r.holdCond = sync.NewCond(&r.holdMu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds decl at the requested position. When the renderer is
// available and the registry is not held the layer is applied immediately;
// apply failures are published as layer.error events and do not fail the
// call.
func (r *Registry) Register(ctx context.Context, decl Declaration, opts RegisterOptions) error {
	if err := decl.Validate(); err != nil {
		return err
	}
	if decl.Category == "" {
		decl.Category = CategoryOverlay
	}
	decl.Metadata = decl.Metadata.clone()

	visible := true
	if decl.Metadata.Visible != nil {
		visible = *decl.Metadata.Visible
	}
	if opts.Visible != nil {
		visible = *opts.Visible
	}
	opacity := 1.0
	if decl.Metadata.Opacity != nil {
		opacity = *decl.Metadata.Opacity
	}
	if opts.Opacity != nil {
		opacity = *opts.Opacity
	}

	r.mu.Lock()
	if _, exists := r.byID[decl.ID]; exists {
		r.mu.Unlock()
		return mcerrors.NewAlreadyExistsError("layer", decl.ID).WithCause(mcerrors.ErrLayerExists)
	}
	e := &entry{
		decl: decl,
		state: State{
			ID:       decl.ID,
			Type:     decl.Type(),
			Category: decl.Category,
			Visible:  visible,
			Opacity:  render.ClampOpacity(opacity),
		},
	}
	idx := opts.Position.resolve(len(r.order), r.indexLocked)
	r.order = slices.Insert(r.order, idx, e)
	r.byID[decl.ID] = e
	r.reindexLocked()
	order := e.state.Order
	r.mu.Unlock()

	r.logger.Debug("layer registered", "layer_id", decl.ID, "order", order, "position", opts.Position.String())
	r.publish(event.NewLayerEvent(event.TypeLayerAdded, decl.ID, string(decl.Category), order))

	if !r.beginApply() {
		r.logger.Debug("layer apply deferred", "layer_id", decl.ID)
		return nil
	}
	defer r.endApply()
	if rend, err := r.renderer.Renderer(); err == nil {
		_ = r.applyEntry(ctx, rend, decl.ID)
	}
	return nil
}

// Hold stops Register from applying layers until Release, and waits for
// registrations that are already applying. Entries registered while held
// stay unapplied for the next ApplyAll.
//
// Hold must not be called from a handler of an event published by Register.
func (r *Registry) Hold() {
	r.holdMu.Lock()
	defer r.holdMu.Unlock()
	r.held = true
	for r.inflight > 0 {
		r.holdCond.Wait()
	}
}

// Release ends a Hold.
func (r *Registry) Release() {
	r.holdMu.Lock()
	r.held = false
	r.holdMu.Unlock()
}

// Held reports whether the registry is held.
func (r *Registry) Held() bool {
	r.holdMu.Lock()
	defer r.holdMu.Unlock()
	return r.held
}

func (r *Registry) beginApply() bool {
	r.holdMu.Lock()
	defer r.holdMu.Unlock()
	if r.held {
		return false
	}
	r.inflight++
	return true
}

func (r *Registry) endApply() {
	r.holdMu.Lock()
	r.inflight--
	if r.inflight == 0 {
		r.holdCond.Broadcast()
	}
	r.holdMu.Unlock()
}

// Remove unapplies (if applied) and deletes id. It returns false for
// unknown ids.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	r.mu.RLock()
	e, ok := r.byID[id]
	applied := ok && e.state.Applied
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if applied {
		if rend, err := r.renderer.Renderer(); err == nil {
			_ = r.unapplyEntry(ctx, rend, id)
		}
	}

	r.mu.Lock()
	cur, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, id)
	if i := slices.Index(r.order, cur); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	r.reindexLocked()
	category := cur.decl.Category
	order := cur.state.Order
	r.mu.Unlock()

	r.logger.Debug("layer removed", "layer_id", id)
	r.publish(event.NewLayerEvent(event.TypeLayerRemoved, id, string(category), order))
	return true
}

// Move relocates id within the sequence. If the layer is applied the
// renderer layers are reordered below the first managed id of the next
// applied entry, or to the top when there is none.
func (r *Registry) Move(ctx context.Context, id string, pos Position) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return mcerrors.NewNotFoundError("layer", id).WithCause(mcerrors.ErrLayerNotFound)
	}
	i := slices.Index(r.order, e)
	r.order = slices.Delete(r.order, i, i+1)
	idx := pos.resolve(len(r.order), r.indexLocked)
	r.order = slices.Insert(r.order, idx, e)
	r.reindexLocked()
	applied := e.state.Applied
	managed := e.decl.ManagedIDs()
	anchor := r.anchorLocked(idx)
	category := e.decl.Category
	r.mu.Unlock()

	if applied {
		if rend, err := r.renderer.Renderer(); err == nil {
			for _, lid := range managed {
				if err := rend.MoveLayer(ctx, lid, anchor); err != nil {
					r.fail(id, mcerrors.NewLayerError("move failed", err).
						WithLayerID(id).WithCode(mcerrors.CodeLayerUpdate).WithContext("renderer_layer", lid))
					break
				}
			}
		}
	}

	r.publish(event.NewLayerEvent(event.TypeLayerMoved, id, string(category), idx))
	return nil
}

// SetVisibility updates the visibility of id and pushes it to the renderer
// when applied.
func (r *Registry) SetVisibility(ctx context.Context, id string, visible bool) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return mcerrors.NewNotFoundError("layer", id).WithCause(mcerrors.ErrLayerNotFound)
	}
	e.state.Visible = visible
	applied := e.state.Applied
	decl := e.decl
	r.mu.Unlock()

	if applied {
		if rend, err := r.renderer.Renderer(); err == nil {
			if err := pushVisibility(ctx, rend, decl, visible); err != nil {
				r.fail(id, mcerrors.NewLayerError("set visibility failed", err).
					WithLayerID(id).WithCode(mcerrors.CodeLayerUpdate))
			}
		}
	}

	r.publish(event.NewLayerVisibilityEvent(id, visible))
	return nil
}

// SetOpacity clamps opacity into [0, 1], stores it and pushes it to the
// renderer when applied. Layer types without an opacity channel only
// update the stored value.
func (r *Registry) SetOpacity(ctx context.Context, id string, opacity float64) error {
	opacity = render.ClampOpacity(opacity)

	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return mcerrors.NewNotFoundError("layer", id).WithCause(mcerrors.ErrLayerNotFound)
	}
	e.state.Opacity = opacity
	applied := e.state.Applied
	decl := e.decl
	r.mu.Unlock()

	if applied {
		if rend, err := r.renderer.Renderer(); err == nil {
			if err := pushOpacity(ctx, rend, decl, opacity); err != nil {
				r.fail(id, mcerrors.NewLayerError("set opacity failed", err).
					WithLayerID(id).WithCode(mcerrors.CodeLayerUpdate))
			}
		}
	}

	r.publish(event.NewLayerOpacityEvent(id, opacity))
	return nil
}

// ItemError is a per-layer failure inside a batch.
type ItemError struct {
	LayerID string
	Err     error
}

func (e ItemError) Error() string {
	if e.LayerID == "" {
		return e.Err.Error()
	}
	return e.LayerID + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

// BatchResult summarizes ApplyAll and UnapplyAll.
type BatchResult struct {
	Processed []string
	Skipped   int
	Errors    []ItemError
}

// OK reports whether the batch had no failures.
func (b BatchResult) OK() bool { return len(b.Errors) == 0 }

// Err joins every item error, or returns nil.
func (b BatchResult) Err() error {
	if len(b.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(b.Errors))
	for i, e := range b.Errors {
		errs[i] = e
	}
	return mcerrors.Join(errs...)
}

// ApplyAll applies every unapplied entry in ascending order. Failures are
// collected and published; they never stop the batch.
func (r *Registry) ApplyAll(ctx context.Context) BatchResult {
	var res BatchResult
	rend, err := r.renderer.Renderer()
	if err != nil {
		res.Errors = append(res.Errors, ItemError{Err: err})
		return res
	}

	for _, id := range r.IDs() {
		if st, ok := r.Get(id); !ok || st.Applied {
			res.Skipped++
			continue
		}
		if err := r.applyEntry(ctx, rend, id); err != nil {
			res.Errors = append(res.Errors, ItemError{LayerID: id, Err: err})
			continue
		}
		res.Processed = append(res.Processed, id)
	}
	return res
}

// UnapplyAll removes every applied entry from the renderer, top-most first.
func (r *Registry) UnapplyAll(ctx context.Context) BatchResult {
	var res BatchResult
	rend, err := r.renderer.Renderer()
	if err != nil {
		res.Errors = append(res.Errors, ItemError{Err: err})
		return res
	}

	ids := r.IDs()
	for _, id := range slices.Backward(ids) {
		if st, ok := r.Get(id); !ok || !st.Applied {
			res.Skipped++
			continue
		}
		if err := r.unapplyEntry(ctx, rend, id); err != nil {
			res.Errors = append(res.Errors, ItemError{LayerID: id, Err: err})
			continue
		}
		res.Processed = append(res.Processed, id)
	}
	return res
}

// Clear unapplies everything, then drops every entry.
func (r *Registry) Clear(ctx context.Context) BatchResult {
	var res BatchResult
	if _, err := r.renderer.Renderer(); err == nil {
		res = r.UnapplyAll(ctx)
	}

	r.mu.Lock()
	dropped := r.order
	r.order = nil
	r.byID = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range slices.Backward(dropped) {
		r.publish(event.NewLayerEvent(event.TypeLayerRemoved, e.decl.ID, string(e.decl.Category), e.state.Order))
	}
	return res
}

// Get returns a copy of the runtime state of id.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Declaration returns the declaration registered under id.
func (r *Registry) Declaration(id string) (Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return Declaration{}, false
	}
	d := e.decl
	d.Metadata = d.Metadata.clone()
	return d, true
}

// All returns copies of every runtime state in order.
func (r *Registry) All() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]State, len(r.order))
	for i, e := range r.order {
		out[i] = e.state
	}
	return out
}

// ByCategory returns copies of the states in category c, in order.
func (r *Registry) ByCategory(c Category) []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []State
	for _, e := range r.order {
		if e.decl.Category == c {
			out = append(out, e.state)
		}
	}
	return out
}

// IDs returns registered ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	for i, e := range r.order {
		ids[i] = e.decl.ID
	}
	return ids
}

// Count returns the number of registered layers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) indexLocked(id string) int {
	return slices.IndexFunc(r.order, func(e *entry) bool { return e.decl.ID == id })
}

func (r *Registry) reindexLocked() {
	for i, e := range r.order {
		e.state.Order = i
	}
}

// anchorLocked returns the first managed renderer id of the next applied
// entry above idx, or "" for the top.
func (r *Registry) anchorLocked(idx int) string {
	for _, e := range r.order[idx+1:] {
		if !e.state.Applied {
			continue
		}
		if ids := e.decl.ManagedIDs(); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

// sourceReferenced reports whether a registered native declaration other
// than exceptID uses sourceID.
func (r *Registry) sourceReferenced(sourceID, exceptID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.order {
		if e.decl.ID == exceptID || e.decl.Kind != KindNative {
			continue
		}
		if e.decl.Source.ID == sourceID {
			return true
		}
	}
	return false
}

func (r *Registry) publish(e event.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// fail records err on the entry and publishes a layer.error event.
func (r *Registry) fail(id string, err error) {
	r.mu.Lock()
	if e, ok := r.byID[id]; ok {
		e.state.Error = err.Error()
	}
	r.mu.Unlock()

	r.logger.Warn("layer operation failed", "layer_id", id, "code", mcerrors.GetCode(err), "error", err.Error())
	r.publish(event.NewLayerErrorEvent(id, err))
}
