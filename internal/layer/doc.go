// Package layer keeps the ordered set of layer declarations and applies them
// to the renderer.
//
// Each registered layer is one entry holding its [Declaration] and its
// runtime [State]. Index 0 is the bottom of the stack. A declaration is
// either renderer-native (one source plus layer specs) or custom (a
// [CustomLayer] that issues its own renderer calls).
//
// Apply and unapply never fail the calling operation. Renderer failures are
// recorded on the entry's State.Error and published as layer.error events;
// batch operations also return them in [BatchResult.Errors].
//
// Basemap changes are handled by the engine calling [Registry.UnapplyAll]
// before the style swap and [Registry.ApplyAll] after it. Both are
// idempotent: ApplyAll skips applied entries and walks bottom to top,
// UnapplyAll skips unapplied entries and walks top to bottom.
package layer
