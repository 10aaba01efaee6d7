package tui

import (
	"fmt"

	"github.com/Iron-Ham/mapcore/internal/event"
)

// describe renders an event as one log line and reports whether it is a
// failure.
func describe(e event.Event) (string, bool) {
	switch ev := e.(type) {
	case event.LifecycleChangedEvent:
		return fmt.Sprintf("%s → %s", ev.From, ev.To), false
	case event.LayerEvent:
		return fmt.Sprintf("%s (%s)", ev.LayerID, ev.Category), false
	case event.LayerVisibilityEvent:
		return fmt.Sprintf("%s visible=%t", ev.LayerID, ev.Visible), false
	case event.LayerOpacityEvent:
		return fmt.Sprintf("%s opacity=%.2f", ev.LayerID, ev.Opacity), false
	case event.LayerErrorEvent:
		return fmt.Sprintf("%s: %v", ev.LayerID, ev.Err), true
	case event.PluginEvent:
		return fmt.Sprintf("%s %s", ev.PluginID, ev.Version), false
	case event.PluginErrorEvent:
		return fmt.Sprintf("%s %s: %v", ev.PluginID, ev.Hook, ev.Err), true
	case event.StyleChangeEvent:
		return fmt.Sprintf("%s → %s", orNone(ev.From), ev.To), false
	case event.StyleErrorEvent:
		return fmt.Sprintf("%s rolled_back=%t: %v", ev.Basemap, ev.RolledBack, ev.Err), true
	case event.ViewportEvent:
		vp := ev.Viewport
		return fmt.Sprintf("[%.4f, %.4f] z%.2f", vp.Center[0], vp.Center[1], vp.Zoom), false
	case event.ResizeEvent:
		return fmt.Sprintf("%dx%d", ev.Width, ev.Height), false
	case event.ErrorEvent:
		return fmt.Sprintf("%s/%s: %s", ev.Category, ev.Code, ev.Message), true
	default:
		return "", false
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
