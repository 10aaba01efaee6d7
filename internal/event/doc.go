// Package event provides a pub-sub event bus for decoupled communication
// between mapcore components.
//
// The layer registry, plugin manager, style coordinator and engine never
// hold references to each other's observers. They publish typed events on a
// shared [Bus] and subscribe to the ones they care about: the plugin manager
// forwards layer.added / map.resize / map.viewport events to plugin hooks,
// the metrics collector counts everything, and applications listen for
// map.error to surface problems.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher with panic isolation and debug history
//   - [Handler]: Function type for event handlers (func(Event))
//   - [ErrorEvent]: Structured error event built from an error's classification
//
// # Event Categories
//
// Lifecycle: lifecycle.changed, lifecycle.ready, lifecycle.destroyed
//
// Layers: layer.added, layer.removed, layer.applied, layer.unapplied,
// layer.moved, layer.visibility, layer.opacity, layer.error
//
// Plugins: plugin.registered, plugin.unregistered, plugin.error
//
// Style: style.change_start, style.change_complete, style.error
//
// Map: map.viewport, map.resize, map.error
//
// Snapshots: snapshot.captured, snapshot.hydrated
//
// # Error Isolation
//
// A handler that panics never stops the remaining handlers. The bus
// recovers, counts the failure and publishes one [ErrorEvent] with code
// EVENT_HANDLER_ERROR per failing handler. If the event being dispatched is
// itself an ErrorEvent the secondary failure is only logged, so a broken
// error handler cannot recurse.
//
// # Debug History
//
// With [WithDebug] or [Bus.SetDebug] the bus keeps a bounded ring buffer of
// dispatches that can be filtered by event type glob, time and error
// presence:
//
//	bus := event.NewBus(event.WithDebug(256))
//	failures, _ := bus.History(event.HistoryFilter{Pattern: "layer.*", ErrorsOnly: true})
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	off := bus.On(event.TypeLayerAdded, func(e event.Event) {
//	    added := e.(event.LayerEvent)
//	    log.Printf("layer %s at %d", added.LayerID, added.Order)
//	})
//	defer off()
//
//	bus.Publish(event.NewLayerEvent(event.TypeLayerAdded, "roads", "overlay", 0))
package event
