package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a task or timer does not exist.
var ErrNotFound = errors.New("record not found")

// Open opens a SQLite file configured for use by several processes at once:
// WAL journal, a busy timeout so writers wait for each other instead of failing,
// and immediate write transactions.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", dbPath)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// DB is the authoritative task store owned by the main application.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the database schema
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		extern_id TEXT UNIQUE,
		title TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT 0,
		due_date INTEGER,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);

	CREATE TABLE IF NOT EXISTS timers (
		id TEXT PRIMARY KEY,
		extern_id TEXT UNIQUE,
		timer_type TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		task_id TEXT,
		started_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_timers_started_at ON timers(started_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
