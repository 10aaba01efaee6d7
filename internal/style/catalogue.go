package style

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/render"
)

// Basemap is a named style the map can switch to.
type Basemap struct {
	ID          string         `yaml:"id" json:"id" mapstructure:"id"`
	Name        string         `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`
	Attribution string         `yaml:"attribution,omitempty" json:"attribution,omitempty" mapstructure:"attribution"`
	URL         string         `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url"`
	Document    map[string]any `yaml:"document,omitempty" json:"document,omitempty" mapstructure:"document"`
}

// Style returns the renderer style spec for b.
func (b Basemap) Style() render.StyleSpec {
	return render.StyleSpec{ID: b.ID, URL: b.URL, Document: b.Document}
}

// Catalogue is the set of known basemaps plus the default choice.
type Catalogue struct {
	Default  string    `yaml:"default"`
	Basemaps []Basemap `yaml:"basemaps"`
}

// Validate checks that ids are unique and the default exists.
func (c Catalogue) Validate() error {
	seen := make(map[string]bool, len(c.Basemaps))
	for i, b := range c.Basemaps {
		if b.ID == "" {
			return mcerrors.NewValidationError("basemap id is required").WithField(fmt.Sprintf("basemaps[%d].id", i))
		}
		if seen[b.ID] {
			return mcerrors.NewValidationError("duplicate basemap id").WithField("basemaps.id").WithValue(b.ID)
		}
		seen[b.ID] = true
	}
	if c.Default != "" && !seen[c.Default] {
		return mcerrors.NewValidationError("default basemap is not in the catalogue").WithField("default").WithValue(c.Default)
	}
	return nil
}

// IDs returns basemap ids in catalogue order.
func (c Catalogue) IDs() []string {
	ids := make([]string, len(c.Basemaps))
	for i, b := range c.Basemaps {
		ids[i] = b.ID
	}
	return ids
}

// Lookup finds a basemap by id.
func (c Catalogue) Lookup(id string) (Basemap, bool) {
	i := slices.IndexFunc(c.Basemaps, func(b Basemap) bool { return b.ID == id })
	if i < 0 {
		return Basemap{}, false
	}
	return c.Basemaps[i], true
}

// ParseCatalogue decodes a YAML catalogue.
//
//	default: streets
//	basemaps:
//	  - id: streets
//	    url: https://tiles.example.com/streets.json
//	  - id: satellite
//	    url: https://tiles.example.com/satellite.json
func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, mcerrors.NewValidationError("invalid basemap catalogue").WithCause(err)
	}
	if err := c.Validate(); err != nil {
		return Catalogue{}, err
	}
	return c, nil
}

// LoadCatalogue reads a YAML catalogue file.
func LoadCatalogue(path string) (Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("reading basemap catalogue: %w", err)
	}
	return ParseCatalogue(data)
}
