package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/persistence"
)

// FileStore keeps one file per snapshot in a directory, named <id>.json or
// <id>.yaml.
type FileStore struct {
	dir    string
	format Format
	mu     sync.RWMutex
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
// An empty format means JSON.
func NewFileStore(dir string, format Format) (*FileStore, error) {
	if dir == "" {
		return nil, mcerrors.NewValidationError("snapshot directory is required").WithField("path")
	}
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, mcerrors.NewValidationError("unknown snapshot format").WithField("format").WithValue(string(format))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, mcerrors.NewPersistenceError("create snapshot directory", err).WithPath(dir)
	}
	return &FileStore{dir: dir, format: format}, nil
}

// Dir returns the store directory.
func (fs *FileStore) Dir() string { return fs.dir }

// Save writes s to a new file.
func (fs *FileStore) Save(ctx context.Context, s *persistence.Snapshot) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	id := uuid.NewString()
	path := filepath.Join(fs.dir, id+"."+string(fs.format))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := WriteFile(path, s); err != nil {
		return Entry{}, err
	}
	e := entryFor(id, s)
	e.Path = path
	return e, nil
}

// Load reads the document stored under id. Either extension is accepted.
func (fs *FileStore) Load(ctx context.Context, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path, ok := fs.find(id)
	if !ok {
		return nil, mcerrors.NewNotFoundError("snapshot", id).WithCause(mcerrors.ErrSnapshotNotFound)
	}
	return ReadFile(path)
}

// List returns an entry per readable snapshot file, oldest first.
// Unreadable files are skipped.
func (fs *FileStore) List(ctx context.Context) ([]Entry, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	files, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, mcerrors.NewPersistenceError("list snapshots", err).WithPath(fs.dir)
	}

	var entries []Entry
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() || !IsSnapshotFile(f.Name()) {
			continue
		}
		path := filepath.Join(fs.dir, f.Name())
		doc, err := ReadFile(path)
		if err != nil {
			continue
		}
		e := entryFromDocument(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())), doc)
		e.Path = path
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Delete removes the file stored under id.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path, ok := fs.find(id)
	if !ok {
		return mcerrors.NewNotFoundError("snapshot", id).WithCause(mcerrors.ErrSnapshotNotFound)
	}
	if err := os.Remove(path); err != nil {
		return mcerrors.NewPersistenceError("delete snapshot", err).WithPath(path)
	}
	return nil
}

// Close is a no-op.
func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) find(id string) (string, bool) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", false
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(fs.dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// IsSnapshotFile reports whether name has a snapshot file extension.
func IsSnapshotFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
