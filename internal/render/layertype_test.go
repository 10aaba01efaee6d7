package render

import (
	"math"
	"testing"
)

func TestOpacityProperties(t *testing.T) {
	tests := []struct {
		layerType LayerType
		want      []string
	}{
		{LayerFill, []string{"fill-opacity"}},
		{LayerLine, []string{"line-opacity"}},
		{LayerCircle, []string{"circle-opacity"}},
		{LayerSymbol, []string{"icon-opacity", "text-opacity"}},
		{LayerRaster, []string{"raster-opacity"}},
		{LayerFillExtrusion, []string{"fill-extrusion-opacity"}},
		{LayerHeatmap, []string{"heatmap-opacity"}},
		{LayerHillshade, []string{"hillshade-exaggeration"}},
		{LayerBackground, nil},
		{LayerSky, nil},
		{LayerType("custom-3d"), nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.layerType), func(t *testing.T) {
			got := OpacityProperties(tt.layerType)
			if len(got) != len(tt.want) {
				t.Fatalf("OpacityProperties(%q) = %v, want %v", tt.layerType, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("OpacityProperties(%q)[%d] = %q, want %q", tt.layerType, i, got[i], tt.want[i])
				}
			}
			if SupportsOpacity(tt.layerType) != (len(tt.want) > 0) {
				t.Errorf("SupportsOpacity(%q) mismatch", tt.layerType)
			}
		})
	}
}

func TestOpacityProperties_ReturnsCopy(t *testing.T) {
	got := OpacityProperties(LayerFill)
	got[0] = "mutated"
	if OpacityProperties(LayerFill)[0] != "fill-opacity" {
		t.Error("OpacityProperties leaked its internal slice")
	}
}

func TestClampOpacity(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.5, 1},
		{-0.5, 0},
		{0.25, 0.25},
		{0, 0},
		{1, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampOpacity(tt.in); got != tt.want {
			t.Errorf("ClampOpacity(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVisibilityValue(t *testing.T) {
	if VisibilityValue(true) != "visible" {
		t.Errorf("VisibilityValue(true) = %q", VisibilityValue(true))
	}
	if VisibilityValue(false) != "none" {
		t.Errorf("VisibilityValue(false) = %q", VisibilityValue(false))
	}
}

func TestCloneLayerSpec(t *testing.T) {
	spec := LayerSpec{ID: "a", Type: LayerFill, Paint: map[string]any{"fill-color": "#fff"}}
	clone := CloneLayerSpec(spec)
	clone.Paint["fill-color"] = "#000"
	if spec.Paint["fill-color"] != "#fff" {
		t.Error("CloneLayerSpec shares the paint map")
	}
	if ids := LayerIDs([]LayerSpec{spec, {ID: "b"}}); len(ids) != 2 || ids[1] != "b" {
		t.Errorf("LayerIDs = %v", ids)
	}
}
