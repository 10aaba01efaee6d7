package engine

import (
	"context"
	"slices"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/lifecycle"
)

// Destroy tears the map down: plugins are told and unregistered, layers
// removed, the style forgotten, cleanups run newest first, and the renderer
// released. The bus is cleared before the transition to destroyed, so
// subscribers never see lifecycle.destroyed; poll State or WaitReady instead.
//
// Destroy is idempotent. Before Init it does nothing. Errors from cleanups
// and the renderer are joined and returned; they never stop teardown.
func (m *Map) Destroy(ctx context.Context) error {
	m.destroyMu.Lock()
	defer m.destroyMu.Unlock()

	switch m.machine.State() {
	case lifecycle.StateUninitialized, lifecycle.StateDestroyed:
		return nil
	}
	m.logger.Info("destroying map", "state", m.machine.State().String())

	m.plugins.NotifyDestroy(ctx)
	m.plugins.Clear(ctx)
	m.logBatch("clear", m.layers.Clear(ctx))
	m.style.Clear()

	var errs []error

	m.mu.Lock()
	cleanups := m.cleanups
	m.cleanups = nil
	offs := m.rendererOff
	m.rendererOff = nil
	rend := m.renderer
	m.renderer = nil
	m.mu.Unlock()

	for _, fn := range slices.Backward(cleanups) {
		if err := runCleanup(ctx, fn); err != nil {
			m.logger.Warn("cleanup failed", "error", err)
			errs = append(errs, err)
		}
	}

	for _, off := range offs {
		off()
	}
	if rend != nil {
		if err := rend.Remove(); err != nil {
			m.logger.Warn("renderer remove failed", "error", err)
			errs = append(errs, mcerrors.NewRendererError("remove renderer", err).WithOperation("remove"))
		}
	}

	m.bus.Clear()
	if err := m.machine.Transition(lifecycle.StateDestroyed); err != nil {
		errs = append(errs, err)
	}
	m.logger.Info("map destroyed")
	return mcerrors.Join(errs...)
}

func runCleanup(ctx context.Context, fn Cleanup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mcerrors.FromPanic(r)
		}
	}()
	return fn(ctx)
}
