// Package projection holds the cached copy of the authoritative task list that
// out-of-process renderers draw from. Only the synchronizer writes it; every
// write replaces the whole snapshot.
package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/c.mueller/househelper-sync/internal/models"
)

const blobName = "tasks"

// Snapshot is the cached task list. LastSyncedAt is nil until the first
// successful write.
type Snapshot struct {
	Tasks        []models.TaskSnapshot `json:"tasks"`
	LastSyncedAt *time.Time            `json:"lastSyncedAt,omitempty"`
}

// Synced reports whether the snapshot was ever written.
func (s Snapshot) Synced() bool {
	return s.LastSyncedAt != nil
}

// StaleAt reports whether the snapshot is older than maxAge at now. A snapshot
// that was never written is always stale.
func (s Snapshot) StaleAt(now time.Time, maxAge time.Duration) bool {
	if s.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*s.LastSyncedAt) >= maxAge
}

// Cache is the persisted projection.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Cache on an open state database. A nil logger means
// slog.Default().
func New(db *sql.DB, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{db: db, logger: logger}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS projection (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		synced_at INTEGER NOT NULL
	);
	`); err != nil {
		return nil, fmt.Errorf("failed to initialize projection schema: %w", err)
	}
	return c, nil
}

// Read returns the last written snapshot. It never fails: a missing or
// unreadable blob yields the empty never-synced snapshot.
func (c *Cache) Read(ctx context.Context) Snapshot {
	snap, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("failed to read task projection, serving empty list", "error", err)
		return Snapshot{Tasks: []models.TaskSnapshot{}}
	}
	return snap
}

func (c *Cache) load(ctx context.Context) (Snapshot, error) {
	var body string
	err := c.db.QueryRowContext(ctx, "SELECT body FROM projection WHERE name = ?", blobName).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Tasks: []models.TaskSnapshot{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query projection: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode projection: %w", err)
	}
	if snap.Tasks == nil {
		snap.Tasks = []models.TaskSnapshot{}
	}
	return snap, nil
}

// Write replaces the snapshot with tasks and syncedAt. It reports whether the
// task list differs from what was cached before.
func (c *Cache) Write(ctx context.Context, tasks []models.TaskSnapshot, syncedAt time.Time) (bool, error) {
	if tasks == nil {
		tasks = []models.TaskSnapshot{}
	}
	syncedAt = syncedAt.UTC()

	body, err := json.Marshal(Snapshot{Tasks: tasks, LastSyncedAt: &syncedAt})
	if err != nil {
		return false, fmt.Errorf("failed to encode projection: %w", err)
	}

	previous, err := c.load(ctx)
	changed := err != nil || !previous.Synced() || !sameTasks(previous.Tasks, tasks)

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO projection (name, body, synced_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, synced_at = excluded.synced_at`,
		blobName, string(body), syncedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to write projection: %w", err)
	}

	return changed, nil
}

func sameTasks(a, b []models.TaskSnapshot) bool {
	return slices.EqualFunc(a, b, func(x, y models.TaskSnapshot) bool {
		if x.ID != y.ID || x.Title != y.Title || x.IsCompleted != y.IsCompleted {
			return false
		}
		if x.DueDate == nil || y.DueDate == nil {
			return x.DueDate == nil && y.DueDate == nil
		}
		return x.DueDate.Equal(*y.DueDate)
	})
}
