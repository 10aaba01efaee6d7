package layer

import (
	"context"
	"fmt"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// Kind discriminates the two declaration forms.
type Kind int

const (
	// KindNative is a renderer-native declaration: one source plus one or
	// more renderer layer specs.
	KindNative Kind = iota
	// KindCustom is a declaration that materializes itself through a
	// CustomLayer implementation.
	KindCustom
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Category groups layers for display and filtering.
type Category string

const (
	CategoryBase       Category = "base"
	CategoryOverlay    Category = "overlay"
	CategoryAnnotation Category = "annotation"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBase, CategoryOverlay, CategoryAnnotation:
		return true
	}
	return false
}

// Metadata is optional descriptive data attached to a declaration.
type Metadata struct {
	Title       string         `json:"title,omitempty" yaml:"title,omitempty"`
	Attribution string         `json:"attribution,omitempty" yaml:"attribution,omitempty"`
	Visible     *bool          `json:"visible,omitempty" yaml:"visible,omitempty"`
	Opacity     *float64       `json:"opacity,omitempty" yaml:"opacity,omitempty"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// IsZero reports whether no metadata is set.
func (m Metadata) IsZero() bool {
	return m.Title == "" && m.Attribution == "" && m.Visible == nil && m.Opacity == nil && len(m.Extra) == 0
}

func (m Metadata) clone() Metadata {
	out := m
	if m.Visible != nil {
		v := *m.Visible
		out.Visible = &v
	}
	if m.Opacity != nil {
		v := *m.Opacity
		out.Opacity = &v
	}
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// CustomLayer materializes a layer through arbitrary renderer calls.
type CustomLayer interface {
	Apply(ctx context.Context, r render.Renderer) error
	Remove(ctx context.Context, r render.Renderer) error
}

// VisibilitySetter is implemented by custom layers that can toggle
// visibility without being removed.
type VisibilitySetter interface {
	SetVisibility(ctx context.Context, r render.Renderer, visible bool) error
}

// OpacitySetter is implemented by custom layers with an opacity channel.
type OpacitySetter interface {
	SetOpacity(ctx context.Context, r render.Renderer, opacity float64) error
}

// ManagedLayers is implemented by custom layers that want to take part in
// reordering. It returns the renderer layer ids the layer owns, bottom first.
type ManagedLayers interface {
	LayerIDs() []string
}

// Declaration is the static description of a layer.
type Declaration struct {
	ID       string
	Kind     Kind
	Category Category
	Metadata Metadata

	// Native form.
	Source render.SourceSpec
	Layers []render.LayerSpec

	// Custom form.
	Custom CustomLayer
	// CustomType names the custom layer's type in snapshots.
	CustomType string
}

// Native builds a renderer-native declaration.
func Native(id string, category Category, source render.SourceSpec, layers ...render.LayerSpec) Declaration {
	return Declaration{
		ID:       id,
		Kind:     KindNative,
		Category: category,
		Source:   source,
		Layers:   layers,
	}
}

// Custom builds a custom declaration.
func Custom(id string, category Category, typ string, impl CustomLayer) Declaration {
	return Declaration{
		ID:         id,
		Kind:       KindCustom,
		Category:   category,
		Custom:     impl,
		CustomType: typ,
	}
}

// WithMetadata returns a copy of d carrying m.
func (d Declaration) WithMetadata(m Metadata) Declaration {
	d.Metadata = m
	return d
}

// Type is the layer type recorded in snapshots: the source type for native
// declarations and CustomType (or "custom") for custom ones.
func (d Declaration) Type() string {
	if d.Kind == KindCustom {
		if d.CustomType != "" {
			return d.CustomType
		}
		return "custom"
	}
	return d.Source.Type
}

// ManagedIDs returns the renderer layer ids owned by d, bottom first.
func (d Declaration) ManagedIDs() []string {
	switch d.Kind {
	case KindNative:
		return render.LayerIDs(d.Layers)
	case KindCustom:
		if m, ok := d.Custom.(ManagedLayers); ok {
			return m.LayerIDs()
		}
	}
	return nil
}

// Validate checks the declaration's shape.
func (d Declaration) Validate() error {
	if d.ID == "" {
		return mcerrors.NewValidationError("layer id is required").WithField("id")
	}
	if d.Category != "" && !d.Category.Valid() {
		return mcerrors.NewValidationError("unknown layer category").WithField("category").WithValue(string(d.Category))
	}
	switch d.Kind {
	case KindNative:
		if len(d.Layers) == 0 {
			return mcerrors.NewValidationError("native layer needs at least one layer spec").WithField("layers").WithValue(d.ID)
		}
		seen := make(map[string]bool, len(d.Layers))
		for _, spec := range d.Layers {
			if spec.ID == "" {
				return mcerrors.NewValidationError("layer spec id is required").WithField("layers.id").WithValue(d.ID)
			}
			if seen[spec.ID] {
				return mcerrors.NewValidationError("duplicate layer spec id").WithField("layers.id").WithValue(spec.ID)
			}
			seen[spec.ID] = true
			if spec.SourceID != "" && d.Source.ID != "" && spec.SourceID != d.Source.ID {
				return mcerrors.NewValidationError("layer spec references a different source").WithField("layers.source").WithValue(spec.SourceID)
			}
		}
	case KindCustom:
		if d.Custom == nil {
			return mcerrors.NewValidationError("custom layer implementation is required").WithField("custom").WithValue(d.ID)
		}
	default:
		return mcerrors.NewValidationError("unknown layer kind").WithField("kind").WithValue(int(d.Kind))
	}
	return nil
}

// State is the runtime record of a registered layer.
type State struct {
	ID       string
	Type     string
	Category Category
	Visible  bool
	Opacity  float64
	Applied  bool
	Order    int
	Error    string
}
