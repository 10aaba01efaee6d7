package layer

import (
	"context"
	"slices"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// applyEntry materializes id on rend. Failures are recorded and published;
// the returned error is for batch bookkeeping.
func (r *Registry) applyEntry(ctx context.Context, rend render.Renderer, id string) error {
	r.mu.RLock()
	e, ok := r.byID[id]
	if !ok || e.state.Applied {
		r.mu.RUnlock()
		return nil
	}
	decl := e.decl
	state := e.state
	anchor := r.anchorLocked(slices.Index(r.order, e))
	r.mu.RUnlock()

	var err error
	switch decl.Kind {
	case KindNative:
		err = applyNative(ctx, rend, decl, state, anchor)
	case KindCustom:
		err = applyCustom(ctx, rend, decl, state)
	}
	if err != nil {
		lerr := mcerrors.NewLayerError("apply failed", err).WithLayerID(id).WithCode(mcerrors.CodeLayerApply)
		r.fail(id, lerr)
		return lerr
	}

	r.mu.Lock()
	if cur, ok := r.byID[id]; ok && cur == e {
		cur.state.Applied = true
		cur.state.Error = ""
		state = cur.state
	}
	r.mu.Unlock()

	r.logger.Debug("layer applied", "layer_id", id, "anchor", anchor)
	r.publish(event.NewLayerEvent(event.TypeLayerApplied, id, string(decl.Category), state.Order))
	return nil
}

// unapplyEntry removes id from rend. The entry is marked unapplied even when
// removal fails, since the renderer state is no longer trusted.
func (r *Registry) unapplyEntry(ctx context.Context, rend render.Renderer, id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok || !e.state.Applied {
		r.mu.Unlock()
		return nil
	}
	decl := e.decl
	e.state.Applied = false
	order := e.state.Order
	r.mu.Unlock()

	var err error
	switch decl.Kind {
	case KindNative:
		err = r.unapplyNative(ctx, rend, decl)
	case KindCustom:
		err = decl.Custom.Remove(ctx, rend)
	}
	if err != nil {
		lerr := mcerrors.NewLayerError("unapply failed", err).WithLayerID(id).WithCode(mcerrors.CodeLayerRemove)
		r.fail(id, lerr)
		return lerr
	}

	r.logger.Debug("layer unapplied", "layer_id", id)
	r.publish(event.NewLayerEvent(event.TypeLayerUnapplied, id, string(decl.Category), order))
	return nil
}

func applyNative(ctx context.Context, rend render.Renderer, decl Declaration, state State, anchor string) error {
	addedSource := false
	if decl.Source.ID != "" && !rend.HasSource(decl.Source.ID) {
		if err := rend.AddSource(ctx, decl.Source); err != nil {
			return err
		}
		addedSource = true
	}

	added := make([]string, 0, len(decl.Layers))
	for _, spec := range decl.Layers {
		spec = materialize(spec, decl.Source.ID, state)
		if err := rend.AddLayer(ctx, spec, anchor); err != nil {
			// Leave the renderer as it was before this apply.
			for _, lid := range slices.Backward(added) {
				_ = rend.RemoveLayer(ctx, lid)
			}
			if addedSource {
				_ = rend.RemoveSource(ctx, decl.Source.ID)
			}
			return err
		}
		added = append(added, spec.ID)
	}
	return nil
}

func (r *Registry) unapplyNative(ctx context.Context, rend render.Renderer, decl Declaration) error {
	var errs []error
	for _, spec := range slices.Backward(decl.Layers) {
		if !rend.HasLayer(spec.ID) {
			continue
		}
		if err := rend.RemoveLayer(ctx, spec.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 && decl.Source.ID != "" && rend.HasSource(decl.Source.ID) &&
		!r.sourceReferenced(decl.Source.ID, decl.ID) {
		if err := rend.RemoveSource(ctx, decl.Source.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return mcerrors.Join(errs...)
}

func applyCustom(ctx context.Context, rend render.Renderer, decl Declaration, state State) error {
	if err := decl.Custom.Apply(ctx, rend); err != nil {
		return err
	}
	if !state.Visible {
		if vs, ok := decl.Custom.(VisibilitySetter); ok {
			if err := vs.SetVisibility(ctx, rend, false); err != nil {
				return err
			}
		}
	}
	if state.Opacity != 1 {
		if setter, ok := decl.Custom.(OpacitySetter); ok {
			if err := setter.SetOpacity(ctx, rend, state.Opacity); err != nil {
				return err
			}
		}
	}
	return nil
}

// materialize folds runtime state into a copy of spec.
func materialize(spec render.LayerSpec, sourceID string, state State) render.LayerSpec {
	spec = render.CloneLayerSpec(spec)
	if spec.SourceID == "" && sourceID != "" && spec.Type != render.LayerBackground && spec.Type != render.LayerSky {
		spec.SourceID = sourceID
	}
	if spec.Layout == nil {
		spec.Layout = make(map[string]any, 1)
	}
	spec.Layout[render.VisibilityProperty] = render.VisibilityValue(state.Visible)
	if state.Opacity != 1 {
		if spec.Paint == nil {
			spec.Paint = make(map[string]any)
		}
		for _, prop := range render.OpacityProperties(spec.Type) {
			spec.Paint[prop] = state.Opacity
		}
	}
	return spec
}

func pushVisibility(ctx context.Context, rend render.Renderer, decl Declaration, visible bool) error {
	switch decl.Kind {
	case KindCustom:
		if vs, ok := decl.Custom.(VisibilitySetter); ok {
			return vs.SetVisibility(ctx, rend, visible)
		}
		return nil
	default:
		value := render.VisibilityValue(visible)
		for _, spec := range decl.Layers {
			if err := rend.SetLayoutProperty(ctx, spec.ID, render.VisibilityProperty, value); err != nil {
				return err
			}
		}
		return nil
	}
}

func pushOpacity(ctx context.Context, rend render.Renderer, decl Declaration, opacity float64) error {
	switch decl.Kind {
	case KindCustom:
		if setter, ok := decl.Custom.(OpacitySetter); ok {
			return setter.SetOpacity(ctx, rend, opacity)
		}
		return nil
	default:
		for _, spec := range decl.Layers {
			for _, prop := range render.OpacityProperties(spec.Type) {
				if err := rend.SetPaintProperty(ctx, spec.ID, prop, opacity); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
