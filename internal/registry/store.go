// Package registry persists installed tools and keeps the set of available
// tools current: built-ins are bootstrapped from a curated list, user tools
// arrive as validated packages, and a directory watcher picks up new packages
// without a restart.
package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codefionn/wasmwerk/internal/manifest"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no tool with the given name is registered.
var ErrNotFound = errors.New("tool not found")

// ErrBuiltinProtected is returned for attempts to remove a built-in tool.
var ErrBuiltinProtected = errors.New("built-in tools cannot be removed")

// StoredTool is one registered tool: its manifest, its binary and its
// registry metadata.
type StoredTool struct {
	ID          string
	Name        string
	Version     string
	Description string
	Manifest    *manifest.ToolManifest
	Wasm        []byte
	Builtin     bool
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the SQLite-backed tool registry.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tools (
	id          TEXT NOT NULL,
	name        TEXT PRIMARY KEY,
	version     TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	manifest    TEXT NOT NULL,
	wasm        BLOB NOT NULL,
	builtin     INTEGER NOT NULL DEFAULT 0,
	enabled     INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
`

// OpenStore opens (creating if needed) the registry database at path.
// Use ":memory:" for an ephemeral registry.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a tool by name.
func (s *Store) Put(t *StoredTool) error {
	manifestJSON, err := json.Marshal(t.Manifest)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest for %s: %w", t.Name, err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO tools (id, name, version, description, manifest, wasm, builtin, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			version = excluded.version,
			description = excluded.description,
			manifest = excluded.manifest,
			wasm = excluded.wasm,
			builtin = excluded.builtin,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Version, t.Description, string(manifestJSON), t.Wasm,
		boolInt(t.Builtin), boolInt(t.Enabled), now, now)
	if err != nil {
		return fmt.Errorf("failed to store tool %s: %w", t.Name, err)
	}
	return nil
}

// Get loads one tool by name.
func (s *Store) Get(name string) (*StoredTool, error) {
	row := s.db.QueryRow(`
		SELECT id, name, version, description, manifest, wasm, builtin, enabled, created_at, updated_at
		FROM tools WHERE name = ?`, name)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, err
}

// List returns all registered tools ordered by name.
func (s *Store) List() ([]*StoredTool, error) {
	rows, err := s.db.Query(`
		SELECT id, name, version, description, manifest, wasm, builtin, enabled, created_at, updated_at
		FROM tools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()
	var out []*StoredTool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Remove deletes a user-installed tool. Built-in tools are protected and can
// only be disabled.
func (s *Store) Remove(name string) error {
	t, err := s.Get(name)
	if err != nil {
		return err
	}
	if t.Builtin {
		return fmt.Errorf("%w: %s", ErrBuiltinProtected, name)
	}
	_, err = s.db.Exec(`DELETE FROM tools WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove tool %s: %w", name, err)
	}
	return nil
}

// SetEnabled toggles a tool without touching its payload.
func (s *Store) SetEnabled(name string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE tools SET enabled = ?, updated_at = ? WHERE name = ?`,
		boolInt(enabled), time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("failed to update tool %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

// SyncManifest replaces the stored manifest of an existing tool. The binary
// is left untouched; this is how built-in schema updates propagate without a
// reinstall.
func (s *Store) SyncManifest(name string, m *manifest.ToolManifest) error {
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest for %s: %w", name, err)
	}
	res, err := s.db.Exec(`UPDATE tools SET manifest = ?, description = ?, updated_at = ? WHERE name = ?`,
		string(manifestJSON), m.Description, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("failed to sync manifest for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(row rowScanner) (*StoredTool, error) {
	var t StoredTool
	var manifestJSON string
	var builtin, enabled int
	err := row.Scan(&t.ID, &t.Name, &t.Version, &t.Description, &manifestJSON, &t.Wasm,
		&builtin, &enabled, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse([]byte(manifestJSON))
	if err != nil {
		return nil, fmt.Errorf("stored manifest for %s is corrupt: %w", t.Name, err)
	}
	t.Manifest = m
	t.Builtin = builtin != 0
	t.Enabled = enabled != 0
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
