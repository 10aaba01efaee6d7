// Package persistence converts live map state to and from versioned
// snapshots.
//
// A snapshot records the basemap, the viewport, every layer's visibility,
// opacity, order and category, and each plugin's serialized state:
//
//	{
//	  "version": 2,
//	  "timestamp": 1700000000000,
//	  "basemap": "streets",
//	  "viewport": {"center": [13.4, 52.5], "zoom": 10, "bearing": 0, "pitch": 0},
//	  "layers": [{"id": "roads", "type": "geojson", "visible": true, "opacity": 1, "order": 0, "category": "overlay"}],
//	  "plugins": [{"id": "measure", "version": "1.0.0", "schemaVersion": 1, "state": {}}],
//	  "custom": {}
//	}
//
// # Versions
//
// Documents older than MinSupportedVersion are rejected. Documents between
// the floor and CurrentVersion pass through the Migrator chain, one step per
// version. Documents newer than CurrentVersion are accepted with a warning
// and their unknown fields are dropped.
//
// # Hydration
//
// Hydrate fails as a whole only when the snapshot is structurally invalid or
// too old. Otherwise every layer and plugin is restored independently and
// failures are collected in HydrateResult.LayerErrors and PluginErrors.
package persistence
