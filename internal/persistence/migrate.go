package persistence

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/layer"
)

// MigrationFunc upgrades a raw document by exactly one schema version. It
// receives a private copy and may modify it in place.
type MigrationFunc func(doc map[string]any) (map[string]any, error)

// Migrator holds the chain of single-step migrations, keyed by the version
// they upgrade from.
type Migrator struct {
	mu    sync.RWMutex
	steps map[int]MigrationFunc
}

// NewMigrator returns an empty migrator.
func NewMigrator() *Migrator {
	return &Migrator{steps: make(map[int]MigrationFunc)}
}

// DefaultMigrator returns a migrator with the built-in migrations.
func DefaultMigrator() *Migrator {
	m := NewMigrator()
	_ = m.Register(1, migrateV1)
	return m
}

// Register adds the migration from version from to from+1.
func (m *Migrator) Register(from int, fn MigrationFunc) error {
	if fn == nil {
		return mcerrors.NewValidationError("migration function is nil").WithField("fn")
	}
	if from < MinSupportedVersion || from >= CurrentVersion {
		return mcerrors.NewValidationError(
			fmt.Sprintf("migration source version must be in [%d, %d)", MinSupportedVersion, CurrentVersion),
		).WithField("from").WithValue(from)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.steps[from]; exists {
		return mcerrors.NewAlreadyExistsError("migration", fmt.Sprintf("v%d", from))
	}
	m.steps[from] = fn
	return nil
}

// Versions returns the registered source versions in ascending order.
func (m *Migrator) Versions() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.steps))
}

// Migrate runs every step from the document's version up to CurrentVersion
// and returns the upgraded copy. The input document is never modified.
func (m *Migrator) Migrate(doc map[string]any) (map[string]any, error) {
	v, ok := asInt(doc["version"])
	if !ok {
		return nil, mcerrors.NewPersistenceError("migrate snapshot", fmt.Errorf("%w: missing version", mcerrors.ErrSnapshotInvalid)).
			WithCode(mcerrors.CodeSnapshotMigrate)
	}
	if v < MinSupportedVersion {
		return nil, mcerrors.NewPersistenceError("migrate snapshot", mcerrors.ErrSnapshotTooOld).
			WithVersion(v).WithCode(mcerrors.CodeSnapshotMigrate)
	}

	out := cloneDocument(doc)
	for ; v < CurrentVersion; v++ {
		m.mu.RLock()
		step, ok := m.steps[v]
		m.mu.RUnlock()
		if !ok {
			return nil, mcerrors.NewPersistenceError(fmt.Sprintf("no migration from v%d", v), mcerrors.ErrMigrationMissing).
				WithVersion(v).WithCode(mcerrors.CodeSnapshotMigrate)
		}
		next, err := step(out)
		if err != nil {
			return nil, mcerrors.NewPersistenceError(fmt.Sprintf("migration from v%d failed", v), err).
				WithVersion(v).WithCode(mcerrors.CodeSnapshotMigrate)
		}
		if next == nil {
			next = out
		}
		next["version"] = v + 1
		out = next
	}
	return out, nil
}

// migrateV1 moves the root-level camera fields of a v1 document into the
// viewport object and gives every layer the overlay category.
func migrateV1(doc map[string]any) (map[string]any, error) {
	vp := map[string]any{
		"center":  doc["center"],
		"zoom":    doc["zoomLevel"],
		"bearing": 0.0,
		"pitch":   0.0,
	}
	for _, k := range []string{"bearing", "pitch"} {
		if val, ok := doc[k]; ok {
			vp[k] = val
			delete(doc, k)
		}
	}
	delete(doc, "center")
	delete(doc, "zoomLevel")
	doc["viewport"] = vp

	layers, _ := doc["layers"].([]any)
	for _, item := range layers {
		l, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, has := l["category"]; !has {
			l["category"] = string(layer.CategoryOverlay)
		}
	}
	return doc, nil
}

func cloneDocument(doc map[string]any) map[string]any {
	return cloneValue(doc).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
