package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sw33tLie/candyvend/pkg/candy"

	_ "modernc.org/sqlite"
)

var (
	ErrNotRegistered = errors.New("email is not registered for scoring")
	ErrUnknownTable  = errors.New("unknown stock table")
	ErrUnknownField  = errors.New("unknown stock field")
	ErrNoSuchFloor   = errors.New("no stock row for floor")
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(schema()); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// stockColumns renders the five per-type count columns.
func stockColumns() string {
	var b strings.Builder
	for _, t := range candy.All() {
		fmt.Fprintf(&b, "  %s INTEGER NOT NULL DEFAULT 0 CHECK (%s >= 0),\n", candy.APIFieldName(t), candy.APIFieldName(t))
	}
	return b.String()
}

func schema() string {
	cols := stockColumns()
	return `
CREATE TABLE IF NOT EXISTS machine_stock (
` + cols + `  floor_number INTEGER PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS floor_stock (
` + cols + `  floor_number INTEGER PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS vendor_stock (
` + cols + `  id          INTEGER PRIMARY KEY CHECK (id = 1),
  vendor_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS score_requests (
  sys_id        TEXT NOT NULL UNIQUE,
  email         TEXT PRIMARY KEY,
  score         TEXT,
  registered_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS history_entries (
  id           TEXT PRIMARY KEY,
  floor_number INTEGER NOT NULL DEFAULT 0,
  candy_type   TEXT NOT NULL,
  score        INTEGER NOT NULL,
  consumed_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_time ON history_entries(consumed_at);
`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// Rows written by hand through `candyvend db shell`
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
