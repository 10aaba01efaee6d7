// Package plugin runs plugin lifecycles against a map.
//
// A plugin is a [Declaration]: an id, optional dependencies on other plugin
// ids, and optional hooks. [Manager.Register] rejects duplicate ids and
// missing dependencies, runs OnRegister and, when the map is already ready,
// OnMapReady straight away. Unregister refuses while a dependent is still
// registered.
//
// Hooks run one at a time in registration order, except OnDestroy which
// runs in reverse. A hook that returns an error or panics is recorded on
// the plugin's [State] and published as plugin.error; it never aborts the
// map operation that triggered it. Viewport hooks are debounced per plugin.
//
// Every plugin gets a private [Store] and a [Context] exposing the
// renderer, layers and a plugin-scoped logger. Serialize and Hydrate carry
// plugin state in snapshots.
package plugin
