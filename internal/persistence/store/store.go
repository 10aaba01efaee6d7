// Package store saves and loads snapshots. FileStore keeps one JSON or YAML
// file per snapshot; SQLiteStore keeps them in a single database file.
// Both hand back raw documents so callers can validate and migrate them
// with persistence.Parse.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/persistence"
)

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Format is the on-disk encoding of a snapshot file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Entry describes a stored snapshot.
type Entry struct {
	ID        string
	Version   int
	Basemap   string
	CreatedAt time.Time
	Layers    int
	Plugins   int
	// Path is set by FileStore.
	Path string
}

// Store persists snapshots.
type Store interface {
	// Save stores s under a new id.
	Save(ctx context.Context, s *persistence.Snapshot) (Entry, error)

	// Load returns the raw document stored under id. Missing ids match
	// errors.ErrSnapshotNotFound.
	Load(ctx context.Context, id string) (map[string]any, error)

	// List returns all entries, oldest first.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes id.
	Delete(ctx context.Context, id string) error

	Close() error
}

// Options selects and configures a store for Open.
type Options struct {
	Driver string
	// Path is a directory for the file driver and a database file for
	// the sqlite driver.
	Path   string
	Format Format
}

// Open creates the store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverFile:
		return NewFileStore(opts.Path, opts.Format)
	case DriverSQLite:
		return NewSQLiteStore(opts.Path)
	default:
		return nil, mcerrors.NewValidationError("unknown snapshot store driver").
			WithField("driver").WithValue(opts.Driver)
	}
}

// Latest returns the most recent entry in st.
func Latest(ctx context.Context, st Store) (Entry, error) {
	entries, err := st.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, mcerrors.NewPersistenceError("no snapshots stored", mcerrors.ErrSnapshotNotFound).
			WithCode(mcerrors.CodeSnapshotInvalid)
	}
	return entries[len(entries)-1], nil
}

// LoadSnapshot loads id from st and parses it with m (nil for the default
// migrator).
func LoadSnapshot(ctx context.Context, st Store, id string, m *persistence.Migrator) (*persistence.Snapshot, persistence.Report, error) {
	doc, err := st.Load(ctx, id)
	if err != nil {
		return nil, persistence.Report{}, err
	}
	return persistence.Parse(doc, m)
}

// FormatForPath infers the format from a file extension. Unknown
// extensions are JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses data in the given format into a raw document.
func Decode(data []byte, format Format) (map[string]any, error) {
	if format != FormatYAML {
		return persistence.DecodeDocument(data)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, mcerrors.NewPersistenceError("decode yaml snapshot", fmt.Errorf("%w: %w", mcerrors.ErrSnapshotInvalid, err)).
			WithCode(mcerrors.CodeSnapshotInvalid)
	}
	if doc == nil {
		return nil, mcerrors.NewPersistenceError("decode yaml snapshot", fmt.Errorf("%w: empty document", mcerrors.ErrSnapshotInvalid)).
			WithCode(mcerrors.CodeSnapshotInvalid)
	}
	return doc, nil
}

// Encode serializes s in the given format.
func Encode(s *persistence.Snapshot, format Format) ([]byte, error) {
	if format != FormatYAML {
		return persistence.Encode(s)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, mcerrors.NewPersistenceError("encode yaml snapshot", err).WithVersion(s.Version)
	}
	return data, nil
}

// ReadFile reads a snapshot document, choosing the format by extension.
func ReadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mcerrors.NewPersistenceError("read snapshot", mcerrors.ErrSnapshotNotFound).WithPath(path)
		}
		return nil, mcerrors.NewPersistenceError("read snapshot", err).WithPath(path)
	}
	doc, err := Decode(data, FormatForPath(path))
	if err != nil {
		var perr *mcerrors.PersistenceError
		if mcerrors.As(err, &perr) {
			perr.WithPath(path)
		}
		return nil, err
	}
	return doc, nil
}

// WriteFile atomically writes s to path, choosing the format by extension.
func WriteFile(path string, s *persistence.Snapshot) error {
	data, err := Encode(s, FormatForPath(path))
	if err != nil {
		return err
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return mcerrors.NewPersistenceError("write snapshot", err).WithPath(path).WithVersion(s.Version)
	}
	return nil
}

// WriteDocument atomically writes a raw document to path.
func WriteDocument(path string, doc map[string]any) error {
	var (
		data []byte
		err  error
	)
	if FormatForPath(path) == FormatYAML {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return mcerrors.NewPersistenceError("encode snapshot", err).WithPath(path)
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return mcerrors.NewPersistenceError("write snapshot", err).WithPath(path)
	}
	return nil
}

// entryFor builds the header of s.
func entryFor(id string, s *persistence.Snapshot) Entry {
	return Entry{
		ID:        id,
		Version:   s.Version,
		Basemap:   s.Basemap,
		CreatedAt: time.UnixMilli(s.Timestamp),
		Layers:    len(s.Layers),
		Plugins:   len(s.Plugins),
	}
}

// entryFromDocument reads the header fields of a raw document without
// validating it.
func entryFromDocument(id string, doc map[string]any) Entry {
	e := Entry{ID: id}
	e.Version = intField(doc["version"])
	e.Basemap, _ = doc["basemap"].(string)
	e.CreatedAt = time.UnixMilli(int64(intField(doc["timestamp"])))
	if l, ok := doc["layers"].([]any); ok {
		e.Layers = len(l)
	}
	if p, ok := doc["plugins"].([]any); ok {
		e.Plugins = len(p)
	}
	return e
}

func intField(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// atomicWriteFile writes data to a temporary file in the same directory and
// renames it over path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
