package engine

import (
	"context"
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/layer"
)

// SetBasemap switches the basemap. Layers are unapplied before the new
// style loads and re-applied afterwards, so they survive the switch in
// their registered order. An empty id selects the catalogue default and the
// current id is a no-op.
//
// On failure the coordinator restores the previous style, layers are
// re-applied against it, style.error is published and the error returned.
func (m *Map) SetBasemap(ctx context.Context, id string) error {
	if !m.machine.IsReady() {
		return mcerrors.NewLifecycleError("set basemap before ready", mcerrors.ErrNotReady)
	}
	if id == "" {
		id = m.style.Default()
	}
	from := m.style.Current()
	if id == from {
		return nil
	}
	if _, err := m.style.Resolve(id); err != nil {
		return err
	}
	if !m.switchMu.TryLock() {
		return mcerrors.NewStyleError("switch already in progress", mcerrors.ErrStyleBusy).WithBasemap(id)
	}
	defer m.switchMu.Unlock()

	start := time.Now()
	m.logger.Info("basemap switch started", "from", from, "to", id)
	m.bus.Publish(event.NewStyleChangeEvent(event.TypeStyleChangeStart, from, id))
	m.plugins.NotifyStyleChangeStart(ctx)

	// Layers registered until the style settles are left for the closing
	// ApplyAll; applied now, the load would wipe them.
	m.layers.Hold()
	m.logBatch("unapply", m.layers.UnapplyAll(ctx))
	err := m.style.Load(ctx, id)
	m.layers.Release()

	if err != nil {
		rolledBack := false
		var serr *mcerrors.StyleError
		if mcerrors.As(err, &serr) {
			rolledBack = serr.RolledBack
		}
		m.logBatch("reapply", m.layers.ApplyAll(ctx))
		if rolledBack {
			// The restored style wiped anything plugins drew on the old one.
			m.plugins.NotifyStyleChangeComplete(ctx)
		}
		m.bus.Publish(event.NewStyleErrorEvent(id, rolledBack, err))
		m.bus.Publish(event.NewErrorEvent(err))
		m.logger.Error("basemap switch failed", "from", from, "to", id, "rolled_back", rolledBack, "error", err)
		return err
	}

	m.bus.Publish(event.NewStyleChangeEvent(event.TypeStyleChangeComplete, from, id))
	m.logBatch("apply", m.layers.ApplyAll(ctx))
	m.plugins.NotifyStyleChangeComplete(ctx)
	m.logger.Info("basemap switch complete", "from", from, "to", id, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (m *Map) logBatch(op string, res layer.BatchResult) {
	if res.OK() {
		return
	}
	ids := make([]string, len(res.Errors))
	for i, e := range res.Errors {
		ids[i] = e.LayerID
	}
	m.logger.Warn("layer batch had failures", "op", op, "failed", ids, "processed", len(res.Processed))
}
