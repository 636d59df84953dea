// Package store provides the SQLite-backed durable copy of the local cache.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/finsync/internal/cache"
	"github.com/theirongolddev/finsync/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// DB persists collection blobs and sync cursors.
type DB struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the cache database.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveState replaces every stored collection and cursor in one transaction.
func (d *DB) SaveState(st cache.State) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for kind, blob := range st.Collections {
		_, err = tx.Exec(`INSERT OR REPLACE INTO collections (kind, payload, saved_at)
			VALUES (?, ?, ?)`, string(kind), blob, now)
		if err != nil {
			return fmt.Errorf("saving %s: %w", kind, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM sync_cursors"); err != nil {
		return err
	}
	for key, ts := range st.Cursors {
		_, err = tx.Exec(`INSERT INTO sync_cursors (cursor_key, last_sync) VALUES (?, ?)`,
			key, ts.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("saving cursor %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// LoadState reads every stored collection and cursor.
func (d *DB) LoadState() (cache.State, error) {
	st := cache.State{
		Collections: make(map[model.Kind][]byte),
		Cursors:     make(map[string]time.Time),
	}

	rows, err := d.db.Query("SELECT kind, payload FROM collections")
	if err != nil {
		return st, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind string
		var blob []byte
		if err := rows.Scan(&kind, &blob); err != nil {
			return st, err
		}
		st.Collections[model.Kind(kind)] = blob
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	curRows, err := d.db.Query("SELECT cursor_key, last_sync FROM sync_cursors")
	if err != nil {
		return st, err
	}
	defer func() { _ = curRows.Close() }()

	for curRows.Next() {
		var key, raw string
		if err := curRows.Scan(&key, &raw); err != nil {
			return st, err
		}
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			// A cursor we cannot read only costs a full fetch.
			continue
		}
		st.Cursors[key] = ts
	}
	return st, curRows.Err()
}

// Reset drops every stored collection and cursor.
func (d *DB) Reset() error {
	_, err := d.db.Exec("DELETE FROM collections; DELETE FROM sync_cursors;")
	return err
}

// SavedAt returns when each collection was last written.
func (d *DB) SavedAt() (map[model.Kind]time.Time, error) {
	rows, err := d.db.Query("SELECT kind, saved_at FROM collections")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[model.Kind]time.Time)
	for rows.Next() {
		var kind, raw string
		if err := rows.Scan(&kind, &raw); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			out[model.Kind(kind)] = ts
		}
	}
	return out, rows.Err()
}

// CachePath returns the default location of the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "cache.db")
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "finsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "finsync")
}
