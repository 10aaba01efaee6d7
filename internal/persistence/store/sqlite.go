package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	mcerrors "github.com/Iron-Ham/mapcore/internal/errors"
	"github.com/Iron-Ham/mapcore/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	basemap    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	layers     INTEGER NOT NULL,
	plugins    INTEGER NOT NULL,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_created_at ON snapshots(created_at);
`

// SQLiteStore keeps snapshots as JSON rows in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, mcerrors.NewValidationError("snapshot database path is required").WithField("path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, mcerrors.NewPersistenceError("create database directory", err).WithPath(path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, mcerrors.NewPersistenceError("open database", err).WithPath(path)
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, mcerrors.NewPersistenceError("set pragma", err).WithPath(path)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, mcerrors.NewPersistenceError("create schema", err).WithPath(path)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Save inserts s under a new id.
func (s *SQLiteStore) Save(ctx context.Context, snap *persistence.Snapshot) (Entry, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return Entry{}, mcerrors.NewPersistenceError("encode snapshot", err).WithVersion(snap.Version)
	}
	e := entryFor(uuid.NewString(), snap)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, version, basemap, created_at, layers, plugins, body) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Version, e.Basemap, e.CreatedAt.UnixMilli(), e.Layers, e.Plugins, string(body),
	)
	if err != nil {
		return Entry{}, mcerrors.NewPersistenceError("insert snapshot", err).WithPath(s.path)
	}
	return e, nil
}

// Load returns the document stored under id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (map[string]any, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mcerrors.NewNotFoundError("snapshot", id).WithCause(mcerrors.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, mcerrors.NewPersistenceError("query snapshot", err).WithPath(s.path)
	}
	return persistence.DecodeDocument([]byte(body))
}

// List returns all entries, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, basemap, created_at, layers, plugins FROM snapshots ORDER BY created_at, id`)
	if err != nil {
		return nil, mcerrors.NewPersistenceError("list snapshots", err).WithPath(s.path)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Version, &e.Basemap, &createdAt, &e.Layers, &e.Plugins); err != nil {
			return nil, mcerrors.NewPersistenceError("scan snapshot", err).WithPath(s.path)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mcerrors.NewPersistenceError("list snapshots", err).WithPath(s.path)
	}
	return entries, nil
}

// Delete removes id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return mcerrors.NewPersistenceError("delete snapshot", err).WithPath(s.path)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mcerrors.NewPersistenceError("delete snapshot", err).WithPath(s.path)
	}
	if n == 0 {
		return mcerrors.NewNotFoundError("snapshot", id).WithCause(mcerrors.ErrSnapshotNotFound)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close snapshot database: %w", err)
	}
	return nil
}
