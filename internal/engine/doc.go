// Package engine ties the map components together behind one controller.
//
// A Map owns the renderer, the layer registry, the plugin manager, the
// style coordinator and the snapshot persister, all sharing one event bus.
// Its lifecycle is:
//
//	m, _ := engine.New(factory, cfg)
//	m.AddLayer(ctx, decl, layer.RegisterOptions{}) // recorded, applied on Init
//	m.Init(ctx)                                    // renderer, basemap, ready
//	m.SetBasemap(ctx, "satellite")                 // layers survive the switch
//	m.Destroy(ctx)
//
// Renderer access is gated on the ready state. Layers and plugins reach the
// renderer through the Map, so nothing touches it before Init completes or
// after Destroy begins releasing it.
package engine
