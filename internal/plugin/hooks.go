package plugin

import (
	"context"
	"slices"
	"time"

	"github.com/Iron-Ham/mapcore/internal/event"
)

// NotifyMapReady wires event hooks for every plugin and runs OnMapReady in
// registration order.
func (m *Manager) NotifyMapReady(ctx context.Context) {
	entries := m.snapshot()
	for _, e := range entries {
		m.wire(e)
	}
	for _, e := range entries {
		if fn := e.decl.OnMapReady; fn != nil {
			_ = m.safeCall(e, HookMapReady, func() error { return fn(ctx, e.pc) })
		}
	}
}

// NotifyStyleChangeStart runs OnStyleChangeStart in registration order.
func (m *Manager) NotifyStyleChangeStart(ctx context.Context) {
	for _, e := range m.snapshot() {
		if fn := e.decl.OnStyleChangeStart; fn != nil {
			_ = m.safeCall(e, HookStyleChangeStart, func() error { return fn(ctx, e.pc) })
		}
	}
}

// NotifyStyleChangeComplete runs OnStyleChangeComplete in registration order.
func (m *Manager) NotifyStyleChangeComplete(ctx context.Context) {
	for _, e := range m.snapshot() {
		if fn := e.decl.OnStyleChangeComplete; fn != nil {
			_ = m.safeCall(e, HookStyleChangeComplete, func() error { return fn(ctx, e.pc) })
		}
	}
}

// NotifyDestroy runs OnDestroy in reverse registration order.
func (m *Manager) NotifyDestroy(ctx context.Context) {
	for _, e := range slices.Backward(m.snapshot()) {
		if fn := e.decl.OnDestroy; fn != nil {
			_ = m.safeCall(e, HookDestroy, func() error { return fn(ctx, e.pc) })
		}
	}
}

// wire subscribes e's bus-driven hooks once.
func (m *Manager) wire(e *entry) {
	bus := m.deps.Bus
	if bus == nil {
		return
	}

	m.mu.Lock()
	if e.wired {
		m.mu.Unlock()
		return
	}
	e.wired = true
	m.mu.Unlock()

	var unsubs []func()
	d := e.decl
	if d.OnLayerAdded != nil {
		unsubs = append(unsubs, bus.On(event.TypeLayerAdded, func(ev event.Event) {
			le, ok := ev.(event.LayerEvent)
			if !ok {
				return
			}
			_ = m.safeCall(e, HookLayerAdded, func() error { return d.OnLayerAdded(m.baseCtx, e.pc, le.LayerID) })
		}))
	}
	if d.OnLayerRemoved != nil {
		unsubs = append(unsubs, bus.On(event.TypeLayerRemoved, func(ev event.Event) {
			le, ok := ev.(event.LayerEvent)
			if !ok {
				return
			}
			_ = m.safeCall(e, HookLayerRemoved, func() error { return d.OnLayerRemoved(m.baseCtx, e.pc, le.LayerID) })
		}))
	}
	if d.OnResize != nil {
		unsubs = append(unsubs, bus.On(event.TypeResize, func(ev event.Event) {
			re, ok := ev.(event.ResizeEvent)
			if !ok {
				return
			}
			_ = m.safeCall(e, HookResize, func() error { return d.OnResize(m.baseCtx, e.pc, re.Width, re.Height) })
		}))
	}
	if d.OnViewportChange != nil {
		unsubs = append(unsubs, bus.On(event.TypeViewport, func(ev event.Event) {
			ve, ok := ev.(event.ViewportEvent)
			if !ok {
				return
			}
			m.scheduleViewport(e, ve)
		}))
	}

	m.mu.Lock()
	e.unsubs = unsubs
	m.mu.Unlock()
}

// unwire removes e's bus subscriptions and stops its pending viewport timer.
func (m *Manager) unwire(e *entry) {
	m.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.wired = false
	e.vpGen++
	if e.vpTimer != nil {
		e.vpTimer.Stop()
		e.vpTimer = nil
	}
	m.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
}

// scheduleViewport records the latest viewport and replaces the debounce
// timer. Only the last viewport of a burst reaches the hook; a timer whose
// generation is stale by the time it fires does nothing.
func (m *Manager) scheduleViewport(e *entry, ve event.ViewportEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.vpPending = ve.Viewport
	e.vpGen++
	gen := e.vpGen
	if e.vpTimer != nil {
		e.vpTimer.Stop()
	}
	e.vpTimer = time.AfterFunc(m.debounce, func() { m.fireViewport(e, gen) })
}

func (m *Manager) fireViewport(e *entry, gen uint64) {
	m.mu.Lock()
	if !e.wired || gen != e.vpGen {
		m.mu.Unlock()
		return
	}
	vp := e.vpPending
	e.vpTimer = nil
	m.mu.Unlock()

	fn := e.decl.OnViewportChange
	_ = m.safeCall(e, HookViewportChange, func() error { return fn(m.baseCtx, e.pc, vp) })
}

// ViewportDebounce returns the configured debounce interval.
func (m *Manager) ViewportDebounce() time.Duration { return m.debounce }
