// Package history keeps a persistent log of place queries in SQLite so the
// front end can offer recent searches back to the operator.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one distinct query with its most recent use.
type Entry struct {
	Query string    `json:"query"`
	Lat   *float64  `json:"lat,omitempty"`
	Lon   *float64  `json:"lon,omitempty"`
	At    time.Time `json:"at"`
}

// DB wraps the history database.
type DB struct {
	db *sql.DB
}

// Open opens (creating when needed) the history database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		lat REAL,
		lon REAL,
		at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_search_history_query_id ON search_history(query, id)`)
	return &DB{db: db}, nil
}

// Close releases the database.
func (h *DB) Close() error {
	return h.db.Close()
}

// Record stores query, optionally with the coordinates it resolved to.
// Blank queries are ignored.
func (h *DB) Record(ctx context.Context, query string, lat, lon *float64) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	var latVal, lonVal any
	if lat != nil && lon != nil {
		latVal, lonVal = *lat, *lon
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO search_history(query, lat, lon, at) VALUES(?,?,?,?)`,
		query, latVal, lonVal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record %q: %w", query, err)
	}
	return nil
}

// Recent returns up to limit distinct queries, most recent first.
func (h *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT s.query, s.lat, s.lon, s.at
		FROM search_history s
		JOIN (SELECT query, MAX(id) AS id FROM search_history GROUP BY query) latest
		  ON latest.id = s.id
		ORDER BY s.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.Query, &lat, &lon, &e.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if lat.Valid && lon.Valid {
			e.Lat, e.Lon = &lat.Float64, &lon.Float64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear deletes all history.
func (h *DB) Clear(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, `DELETE FROM search_history`)
	return err
}
