package persistence

import (
	"encoding/json"
	"fmt"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/layer"
	"github.com/Iron-Ham/mapcore/internal/render"
)

const (
	// CurrentVersion is the snapshot schema version written by Capture.
	CurrentVersion = 2

	// MinSupportedVersion is the oldest schema version that can be migrated.
	MinSupportedVersion = 1
)

// Snapshot is a versioned capture of the map state.
type Snapshot struct {
	Version   int             `json:"version" yaml:"version"`
	Timestamp int64           `json:"timestamp" yaml:"timestamp"` // unix milliseconds
	Basemap   string          `json:"basemap" yaml:"basemap"`
	Viewport  render.Viewport `json:"viewport" yaml:"viewport"`
	Layers    []LayerState    `json:"layers" yaml:"layers"`
	Plugins   []PluginState   `json:"plugins" yaml:"plugins"`
	Custom    map[string]any  `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// LayerState is the persisted form of a registered layer.
type LayerState struct {
	ID       string          `json:"id" yaml:"id"`
	Type     string          `json:"type" yaml:"type"`
	Visible  bool            `json:"visible" yaml:"visible"`
	Opacity  float64         `json:"opacity" yaml:"opacity"`
	Order    int             `json:"order" yaml:"order"`
	Category layer.Category  `json:"category" yaml:"category"`
	Metadata *layer.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PluginState is the persisted form of a plugin's state.
type PluginState struct {
	ID            string         `json:"id" yaml:"id"`
	Version       string         `json:"version" yaml:"version"`
	SchemaVersion int            `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
	State         map[string]any `json:"state" yaml:"state"`
}

// Layer returns the persisted state of id.
func (s *Snapshot) Layer(id string) (LayerState, bool) {
	for _, l := range s.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return LayerState{}, false
}

// Plugin returns the persisted state of plugin id.
func (s *Snapshot) Plugin(id string) (PluginState, bool) {
	for _, p := range s.Plugins {
		if p.ID == id {
			return p, true
		}
	}
	return PluginState{}, false
}

// Encode returns the indented JSON form of s.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, mcerrors.NewPersistenceError("encode snapshot", err).WithVersion(s.Version)
	}
	return data, nil
}

// DecodeDocument parses JSON into a raw snapshot document. Migrations and
// validation operate on this form.
func DecodeDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, mcerrors.NewPersistenceError("decode snapshot", fmt.Errorf("%w: %w", mcerrors.ErrSnapshotInvalid, err)).
			WithCode(mcerrors.CodeSnapshotInvalid)
	}
	if doc == nil {
		return nil, mcerrors.NewPersistenceError("decode snapshot", fmt.Errorf("%w: document is null", mcerrors.ErrSnapshotInvalid)).
			WithCode(mcerrors.CodeSnapshotInvalid)
	}
	return doc, nil
}

// fromDocument converts a validated, migrated document into a Snapshot.
func fromDocument(doc map[string]any) (*Snapshot, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ToDocument converts s into its raw document form.
func ToDocument(s *Snapshot) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return DecodeDocument(data)
}

// Parse migrates and validates a raw document and returns the snapshot.
// A nil migrator means DefaultMigrator. The report is returned even when
// parsing fails.
func Parse(doc map[string]any, m *Migrator) (*Snapshot, Report, error) {
	if m == nil {
		m = DefaultMigrator()
	}

	report := Validate(doc)
	if !report.Valid() {
		return nil, report, report.Err()
	}

	if report.Version < CurrentVersion {
		migrated, err := m.Migrate(doc)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			return nil, report, err
		}
		after := Validate(migrated)
		after.Migrated = true
		after.SourceVersion = report.Version
		after.Warnings = append(report.Warnings, after.Warnings...)
		report = after
		if !report.Valid() {
			return nil, report, report.Err()
		}
		doc = migrated
	}

	s, err := fromDocument(doc)
	if err != nil {
		perr := mcerrors.NewPersistenceError("decode snapshot", fmt.Errorf("%w: %w", mcerrors.ErrSnapshotInvalid, err)).
			WithVersion(report.Version).WithCode(mcerrors.CodeSnapshotInvalid)
		report.Errors = append(report.Errors, err.Error())
		return nil, report, perr
	}
	return s, report, nil
}

// ParseJSON is DecodeDocument followed by Parse.
func ParseJSON(data []byte, m *Migrator) (*Snapshot, Report, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, Report{Errors: []string{err.Error()}}, err
	}
	return Parse(doc, m)
}
