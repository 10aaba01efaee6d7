// Package event defines event types for decoupling mapcore components.
// Registries, the plugin manager and the engine publish these on a shared
// Bus so that they never call each other's observers directly.
package event

import (
	"time"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "layer.added", "style.change_start")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type names.
const (
	TypeLifecycleChanged   = "lifecycle.changed"
	TypeLifecycleReady     = "lifecycle.ready"
	TypeLifecycleDestroyed = "lifecycle.destroyed"

	TypeLayerAdded      = "layer.added"
	TypeLayerRemoved    = "layer.removed"
	TypeLayerApplied    = "layer.applied"
	TypeLayerUnapplied  = "layer.unapplied"
	TypeLayerMoved      = "layer.moved"
	TypeLayerVisibility = "layer.visibility"
	TypeLayerOpacity    = "layer.opacity"
	TypeLayerError      = "layer.error"

	TypePluginRegistered   = "plugin.registered"
	TypePluginUnregistered = "plugin.unregistered"
	TypePluginError        = "plugin.error"

	TypeStyleChangeStart    = "style.change_start"
	TypeStyleChangeComplete = "style.change_complete"
	TypeStyleError          = "style.error"

	TypeViewport = "map.viewport"
	TypeResize   = "map.resize"
	TypeError    = "map.error"

	TypeSnapshotCaptured = "snapshot.captured"
	TypeSnapshotHydrated = "snapshot.hydrated"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Generic is a payload-free event, useful for tests and ad-hoc signals.
type Generic struct {
	baseEvent
	Payload any
}

// NewGeneric creates a Generic event of the given type.
func NewGeneric(eventType string, payload any) Generic {
	return Generic{baseEvent: newBaseEvent(eventType), Payload: payload}
}

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// LifecycleChangedEvent is emitted on every lifecycle transition.
type LifecycleChangedEvent struct {
	baseEvent
	From string
	To   string
}

// NewLifecycleChangedEvent creates a LifecycleChangedEvent.
func NewLifecycleChangedEvent(from, to string) LifecycleChangedEvent {
	return LifecycleChangedEvent{baseEvent: newBaseEvent(TypeLifecycleChanged), From: from, To: to}
}

// LifecycleReadyEvent is emitted once the renderer is ready.
type LifecycleReadyEvent struct {
	baseEvent
}

// NewLifecycleReadyEvent creates a LifecycleReadyEvent.
func NewLifecycleReadyEvent() LifecycleReadyEvent {
	return LifecycleReadyEvent{baseEvent: newBaseEvent(TypeLifecycleReady)}
}

// LifecycleDestroyedEvent is emitted when the engine enters the destroyed state.
type LifecycleDestroyedEvent struct {
	baseEvent
}

// NewLifecycleDestroyedEvent creates a LifecycleDestroyedEvent.
func NewLifecycleDestroyedEvent() LifecycleDestroyedEvent {
	return LifecycleDestroyedEvent{baseEvent: newBaseEvent(TypeLifecycleDestroyed)}
}

// -----------------------------------------------------------------------------
// Layer Events
// -----------------------------------------------------------------------------

// LayerEvent is emitted for layer added/removed/applied/unapplied/moved.
type LayerEvent struct {
	baseEvent
	LayerID  string
	Category string
	Order    int
}

// NewLayerEvent creates a LayerEvent of the given type.
func NewLayerEvent(eventType, layerID, category string, order int) LayerEvent {
	return LayerEvent{baseEvent: newBaseEvent(eventType), LayerID: layerID, Category: category, Order: order}
}

// LayerVisibilityEvent is emitted when a layer's visibility changes.
type LayerVisibilityEvent struct {
	baseEvent
	LayerID string
	Visible bool
}

// NewLayerVisibilityEvent creates a LayerVisibilityEvent.
func NewLayerVisibilityEvent(layerID string, visible bool) LayerVisibilityEvent {
	return LayerVisibilityEvent{baseEvent: newBaseEvent(TypeLayerVisibility), LayerID: layerID, Visible: visible}
}

// LayerOpacityEvent is emitted when a layer's opacity changes.
type LayerOpacityEvent struct {
	baseEvent
	LayerID string
	Opacity float64
}

// NewLayerOpacityEvent creates a LayerOpacityEvent.
func NewLayerOpacityEvent(layerID string, opacity float64) LayerOpacityEvent {
	return LayerOpacityEvent{baseEvent: newBaseEvent(TypeLayerOpacity), LayerID: layerID, Opacity: opacity}
}

// LayerErrorEvent is emitted when applying, removing or updating a layer fails.
type LayerErrorEvent struct {
	baseEvent
	LayerID string
	Code    string
	Err     error
}

// NewLayerErrorEvent creates a LayerErrorEvent.
func NewLayerErrorEvent(layerID string, err error) LayerErrorEvent {
	return LayerErrorEvent{
		baseEvent: newBaseEvent(TypeLayerError),
		LayerID:   layerID,
		Code:      mcerrors.GetCode(err),
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Plugin Events
// -----------------------------------------------------------------------------

// PluginEvent is emitted when a plugin is registered or unregistered.
type PluginEvent struct {
	baseEvent
	PluginID string
	Name     string
	Version  string
}

// NewPluginEvent creates a PluginEvent of the given type.
func NewPluginEvent(eventType, pluginID, name, version string) PluginEvent {
	return PluginEvent{baseEvent: newBaseEvent(eventType), PluginID: pluginID, Name: name, Version: version}
}

// PluginErrorEvent is emitted when a plugin hook fails.
type PluginErrorEvent struct {
	baseEvent
	PluginID string
	Hook     string
	Err      error
}

// NewPluginErrorEvent creates a PluginErrorEvent.
func NewPluginErrorEvent(pluginID, hook string, err error) PluginErrorEvent {
	return PluginErrorEvent{baseEvent: newBaseEvent(TypePluginError), PluginID: pluginID, Hook: hook, Err: err}
}

// -----------------------------------------------------------------------------
// Style Events
// -----------------------------------------------------------------------------

// StyleChangeEvent is emitted at the start and completion of a basemap change.
type StyleChangeEvent struct {
	baseEvent
	From string
	To   string
}

// NewStyleChangeEvent creates a StyleChangeEvent of the given type.
func NewStyleChangeEvent(eventType, from, to string) StyleChangeEvent {
	return StyleChangeEvent{baseEvent: newBaseEvent(eventType), From: from, To: to}
}

// StyleErrorEvent is emitted when a basemap change fails.
type StyleErrorEvent struct {
	baseEvent
	Basemap    string
	RolledBack bool
	Err        error
}

// NewStyleErrorEvent creates a StyleErrorEvent.
func NewStyleErrorEvent(basemap string, rolledBack bool, err error) StyleErrorEvent {
	return StyleErrorEvent{baseEvent: newBaseEvent(TypeStyleError), Basemap: basemap, RolledBack: rolledBack, Err: err}
}

// -----------------------------------------------------------------------------
// Map Events
// -----------------------------------------------------------------------------

// ViewportEvent is emitted when the camera moves.
type ViewportEvent struct {
	baseEvent
	Viewport render.Viewport
	Final    bool // true for move-end, false for intermediate frames
}

// NewViewportEvent creates a ViewportEvent.
func NewViewportEvent(vp render.Viewport, final bool) ViewportEvent {
	return ViewportEvent{baseEvent: newBaseEvent(TypeViewport), Viewport: vp, Final: final}
}

// ResizeEvent is emitted when the map container is resized.
type ResizeEvent struct {
	baseEvent
	Width  int
	Height int
}

// NewResizeEvent creates a ResizeEvent.
func NewResizeEvent(width, height int) ResizeEvent {
	return ResizeEvent{baseEvent: newBaseEvent(TypeResize), Width: width, Height: height}
}

// ErrorEvent is the general structured error event. Every recoverable
// failure inside the engine ends up here in addition to any specific
// layer/plugin/style error event.
type ErrorEvent struct {
	baseEvent
	Code        string
	Category    string
	Severity    string
	Recoverable bool
	Source      string
	Message     string
	Err         error
	Context     map[string]any
}

// NewErrorEvent builds an ErrorEvent from err's classification.
func NewErrorEvent(err error) ErrorEvent {
	var ctx map[string]any
	var coreErr mcerrors.CoreError
	if mcerrors.As(err, &coreErr) {
		ctx = coreErr.Context()
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent{
		baseEvent:   newBaseEvent(TypeError),
		Code:        mcerrors.GetCode(err),
		Category:    string(mcerrors.GetCategory(err)),
		Severity:    mcerrors.GetSeverity(err).String(),
		Recoverable: mcerrors.IsRecoverable(err),
		Source:      mcerrors.GetSource(err),
		Message:     msg,
		Err:         err,
		Context:     ctx,
	}
}

// -----------------------------------------------------------------------------
// Snapshot Events
// -----------------------------------------------------------------------------

// SnapshotEvent is emitted after a snapshot is captured or hydrated.
type SnapshotEvent struct {
	baseEvent
	Version int
	Basemap string
	Layers  int
	Plugins int
}

// NewSnapshotEvent creates a SnapshotEvent of the given type.
func NewSnapshotEvent(eventType string, version int, basemap string, layers, plugins int) SnapshotEvent {
	return SnapshotEvent{
		baseEvent: newBaseEvent(eventType),
		Version:   version,
		Basemap:   basemap,
		Layers:    layers,
		Plugins:   plugins,
	}
}
