package render

// LayerType is the geometry kind of a renderer layer.
type LayerType string

const (
	LayerFill          LayerType = "fill"
	LayerLine          LayerType = "line"
	LayerCircle        LayerType = "circle"
	LayerSymbol        LayerType = "symbol"
	LayerRaster        LayerType = "raster"
	LayerFillExtrusion LayerType = "fill-extrusion"
	LayerHeatmap       LayerType = "heatmap"
	LayerHillshade     LayerType = "hillshade"
	LayerBackground    LayerType = "background"
	LayerSky           LayerType = "sky"
)

// VisibilityProperty is the layout property toggled for visibility.
const VisibilityProperty = "visibility"

// Visibility layout values.
const (
	Visible = "visible"
	Hidden  = "none"
)

// opacityProperties maps a layer type to the paint properties that carry
// its opacity. Symbols have two channels.
var opacityProperties = map[LayerType][]string{
	LayerFill:          {"fill-opacity"},
	LayerLine:          {"line-opacity"},
	LayerCircle:        {"circle-opacity"},
	LayerSymbol:        {"icon-opacity", "text-opacity"},
	LayerRaster:        {"raster-opacity"},
	LayerFillExtrusion: {"fill-extrusion-opacity"},
	LayerHeatmap:       {"heatmap-opacity"},
	LayerHillshade:     {"hillshade-exaggeration"},
}

// OpacityProperties returns the paint properties used to express opacity
// for t. Background, sky and unknown types return nil.
func OpacityProperties(t LayerType) []string {
	props := opacityProperties[t]
	if len(props) == 0 {
		return nil
	}
	out := make([]string, len(props))
	copy(out, props)
	return out
}

// SupportsOpacity reports whether t has an opacity channel.
func SupportsOpacity(t LayerType) bool {
	return len(opacityProperties[t]) > 0
}

// VisibilityValue converts a boolean into the layout visibility value.
func VisibilityValue(visible bool) string {
	if visible {
		return Visible
	}
	return Hidden
}

// ClampOpacity clamps v into [0, 1].
func ClampOpacity(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
