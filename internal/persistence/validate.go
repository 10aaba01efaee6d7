package persistence

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
)

// Report is the outcome of validating a snapshot document.
type Report struct {
	// Version is the schema version of the validated document.
	Version int
	// SourceVersion is the version before migration. Zero when not migrated.
	SourceVersion int
	Migrated      bool
	Errors        []string
	Warnings      []string

	tooOld bool
}

// Valid reports whether the document had no errors.
func (r Report) Valid() bool { return len(r.Errors) == 0 }

// Err returns the errors as a single PersistenceError, or nil when valid.
// Documents below MinSupportedVersion match ErrSnapshotTooOld.
func (r Report) Err() error {
	if r.Valid() {
		return nil
	}
	sentinel := mcerrors.ErrSnapshotInvalid
	if r.tooOld {
		sentinel = mcerrors.ErrSnapshotTooOld
	}
	cause := fmt.Errorf("%w: %s", sentinel, strings.Join(r.Errors, "; "))
	return mcerrors.NewPersistenceError("snapshot validation failed", cause).
		WithVersion(r.Version).
		WithCode(mcerrors.CodeSnapshotInvalid)
}

// Validate checks the structure of a raw snapshot document against the
// layout of its own version. A version below MinSupportedVersion is an
// error; a version above CurrentVersion is accepted with a warning.
func Validate(doc map[string]any) Report {
	var r Report
	if doc == nil {
		r.Errors = append(r.Errors, "document is empty")
		return r
	}

	v, ok := asInt(doc["version"])
	switch {
	case !ok:
		r.Errors = append(r.Errors, "version: missing or not an integer")
		return r
	case v < MinSupportedVersion:
		r.Version = v
		r.tooOld = true
		r.Errors = append(r.Errors, fmt.Sprintf("version: %d is below minimum supported version %d", v, MinSupportedVersion))
		return r
	case v > CurrentVersion:
		r.Warnings = append(r.Warnings, fmt.Sprintf("version: %d is newer than current version %d; unknown fields are ignored", v, CurrentVersion))
	}
	r.Version = v

	if _, ok := asInt(doc["timestamp"]); !ok {
		r.Errors = append(r.Errors, "timestamp: missing or not an integer")
	}
	if _, ok := doc["basemap"].(string); !ok {
		r.Errors = append(r.Errors, "basemap: missing or not a string")
	}

	if v == 1 {
		r.checkViewportV1(doc)
	} else {
		r.checkViewport(doc["viewport"])
	}
	r.checkLayers(doc["layers"], v)
	r.checkPlugins(doc["plugins"])

	if c, present := doc["custom"]; present && c != nil {
		if _, ok := c.(map[string]any); !ok {
			r.Errors = append(r.Errors, "custom: not an object")
		}
	}
	return r
}

func (r *Report) checkViewport(raw any) {
	vp, ok := raw.(map[string]any)
	if !ok {
		r.Errors = append(r.Errors, "viewport: missing or not an object")
		return
	}
	r.checkCenter("viewport.center", vp["center"])
	if _, ok := asFloat(vp["zoom"]); !ok {
		r.Errors = append(r.Errors, "viewport.zoom: missing or not a number")
	}
	for _, k := range []string{"bearing", "pitch"} {
		if val, present := vp[k]; present {
			if _, ok := asFloat(val); !ok {
				r.Errors = append(r.Errors, fmt.Sprintf("viewport.%s: not a number", k))
			}
		}
	}
}

func (r *Report) checkViewportV1(doc map[string]any) {
	r.checkCenter("center", doc["center"])
	if _, ok := asFloat(doc["zoomLevel"]); !ok {
		r.Errors = append(r.Errors, "zoomLevel: missing or not a number")
	}
}

func (r *Report) checkCenter(path string, raw any) {
	c, ok := raw.([]any)
	if !ok || len(c) != 2 {
		r.Errors = append(r.Errors, path+": must be [lng, lat]")
		return
	}
	for i, x := range c {
		if _, ok := asFloat(x); !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("%s[%d]: not a number", path, i))
		}
	}
}

func (r *Report) checkLayers(raw any, version int) {
	layers, ok := raw.([]any)
	if !ok {
		r.Errors = append(r.Errors, "layers: missing or not an array")
		return
	}
	seen := make(map[string]bool, len(layers))
	for i, item := range layers {
		l, ok := item.(map[string]any)
		if !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("layers[%d]: not an object", i))
			continue
		}
		id, _ := l["id"].(string)
		if id == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("layers[%d].id: missing", i))
			continue
		}
		if seen[id] {
			r.Errors = append(r.Errors, fmt.Sprintf("layers[%d].id: duplicate %q", i, id))
		}
		seen[id] = true
		if _, ok := l["visible"].(bool); !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("layers[%d].visible: missing or not a boolean", i))
		}
		if op, ok := asFloat(l["opacity"]); !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("layers[%d].opacity: missing or not a number", i))
		} else if op < 0 || op > 1 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("layers[%d].opacity: %v outside [0,1] will be clamped", i, op))
		}
		if _, ok := asInt(l["order"]); !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("layers[%d].order: missing or not an integer", i))
		}
		if version >= 2 {
			if _, ok := l["category"].(string); !ok {
				r.Errors = append(r.Errors, fmt.Sprintf("layers[%d].category: missing", i))
			}
		}
	}
}

func (r *Report) checkPlugins(raw any) {
	plugins, ok := raw.([]any)
	if !ok {
		r.Errors = append(r.Errors, "plugins: missing or not an array")
		return
	}
	for i, item := range plugins {
		p, ok := item.(map[string]any)
		if !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("plugins[%d]: not an object", i))
			continue
		}
		if id, _ := p["id"].(string); id == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("plugins[%d].id: missing", i))
		}
		if st, present := p["state"]; present && st != nil {
			if _, ok := st.(map[string]any); !ok {
				r.Errors = append(r.Errors, fmt.Sprintf("plugins[%d].state: not an object", i))
			}
		}
		if sv, present := p["schemaVersion"]; present {
			if _, ok := asInt(sv); !ok {
				r.Errors = append(r.Errors, fmt.Sprintf("plugins[%d].schemaVersion: not an integer", i))
			}
		}
	}
}

// asInt accepts the integer encodings produced by the JSON and YAML decoders.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
