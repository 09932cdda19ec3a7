// Package queue implements the action queue shared by every process on the
// device. Producers (widget tap handlers, shortcut launches, voice-intent
// handlers) append records; only the synchronizer removes them, and only after
// the action was applied to the authoritative store.
//
// Records are keyed by their derived id, so enqueueing the same logical action
// twice stores it once. Each operation is a single SQLite statement or
// transaction, which makes the read-check-insert sequence atomic across
// processes without taking the sync lock.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
)

// ErrStoreUnavailable is returned when the shared queue cannot be read or
// written. An enqueue that fails with it is lost; a drain that fails with it
// aborts the sync cycle.
var ErrStoreUnavailable = errors.New("action queue store unavailable")

// SignalFileName is touched after every new enqueue so a running agent can
// react without polling.
const SignalFileName = "queue.signal"

// Malformed is a queued row whose text could not be decoded.
type Malformed struct {
	ID     string
	Reason string
}

// Batch is the result of DrainAll.
type Batch struct {
	// Records are ordered by CreatedAt, ties broken by ID.
	Records   []action.Record
	Malformed []Malformed
}

// Empty reports whether nothing is queued.
func (b Batch) Empty() bool {
	return len(b.Records) == 0 && len(b.Malformed) == 0
}

// Store is the persisted action queue.
type Store struct {
	db  *sql.DB
	dir string
	now func() time.Time
}

// New creates a Store on an open state database. dir is the shared state
// directory that holds the signal file.
func New(db *sql.DB, dir string) (*Store, error) {
	s := &Store{db: db, dir: dir, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS action_queue (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		record TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_action_queue_created_at ON action_queue(created_at, id);
	`)
	return err
}

// SetClock replaces the clock used to stamp new records.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SignalPath returns the path of the file touched after each new enqueue.
func (s *Store) SignalPath() string {
	return filepath.Join(s.dir, SignalFileName)
}

// EnqueuePayload validates a loosely-typed payload for kind and enqueues it.
// createdAt is when the user acted; producers that retry a delivery pass the
// same value so the retry maps to the same record. A zero createdAt is
// stamped with the current time.
func (s *Store) EnqueuePayload(ctx context.Context, kind action.Kind, fields map[string]any, createdAt time.Time) (action.Record, bool, error) {
	payload, err := action.FromFields(kind, fields)
	if err != nil {
		return action.Record{}, false, err
	}

	if createdAt.IsZero() {
		createdAt = s.now()
	}
	rec := action.New(payload, createdAt)
	inserted, err := s.Enqueue(ctx, rec)
	return rec, inserted, err
}

// Enqueue inserts rec unless a record with the same id is already queued.
// It reports whether the record was newly inserted.
func (s *Store) Enqueue(ctx context.Context, rec action.Record) (bool, error) {
	text, err := action.Encode(rec)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO action_queue (id, kind, record, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, string(rec.Kind()), text, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to insert action: %v", ErrStoreUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: failed to get rows affected: %v", ErrStoreUnavailable, err)
	}
	if rows == 0 {
		return false, nil
	}

	s.ring()
	return true, nil
}

// ring touches the signal file. Watchers are an optimization; a failure here
// leaves the record for the next periodic cycle.
func (s *Store) ring() {
	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	_ = os.WriteFile(s.SignalPath(), []byte(stamp), 0644)
}

// DrainAll returns every queued record without removing any. Rows that fail to
// decode are returned in Batch.Malformed.
func (s *Store) DrainAll(ctx context.Context) (Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, record FROM action_queue ORDER BY created_at ASC, id ASC",
	)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: failed to read queue: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var batch Batch
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return Batch{}, fmt.Errorf("%w: failed to scan action: %v", ErrStoreUnavailable, err)
		}

		rec, err := action.Decode(text)
		if err != nil {
			batch.Malformed = append(batch.Malformed, Malformed{ID: id, Reason: err.Error()})
			continue
		}
		if rec.ID != id {
			batch.Malformed = append(batch.Malformed, Malformed{
				ID:     id,
				Reason: fmt.Sprintf("row key does not match record id %s", rec.ID),
			})
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	if err := rows.Err(); err != nil {
		return Batch{}, fmt.Errorf("%w: error iterating queue: %v", ErrStoreUnavailable, err)
	}

	slices.SortStableFunc(batch.Records, func(a, b action.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return batch, nil
}

// Remove deletes exactly the given ids in one transaction. Absent ids are
// ignored.
func (s *Store) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM action_queue WHERE id = ?")
	if err != nil {
		return fmt.Errorf("%w: failed to prepare delete: %v", ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("%w: failed to delete action %s: %v", ErrStoreUnavailable, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit removal: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Pending returns the number of queued rows, including malformed ones.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM action_queue").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count actions: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}
