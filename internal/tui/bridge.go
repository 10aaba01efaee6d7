package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/mapcore/internal/engine"
	"github.com/Iron-Ham/mapcore/internal/event"
)

// Forward sends every event published on bus to send, usually a
// tea.Program's Send. The returned func unsubscribes.
//
// Handlers run on the publisher's goroutine, so events must not be
// published from inside Update.
func Forward(bus *event.Bus, send func(tea.Msg)) func() {
	id := bus.SubscribeAll(func(e event.Event) {
		send(EventMsg{Event: e})
	})
	return func() { bus.Unsubscribe(id) }
}

// StateOf captures the displayed state of m.
func StateOf(m *engine.Map) StateMsg {
	msg := StateMsg{
		State:   m.State().String(),
		Basemap: m.Basemap(),
		Layers:  m.Layers().All(),
		Plugins: m.Plugins().All(),
	}
	if vp, err := m.Viewport(); err == nil {
		msg.Viewport = vp
	}
	return msg
}
