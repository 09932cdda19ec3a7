package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/google/uuid"
)

const timerColumns = "id, extern_id, timer_type, duration_seconds, task_id, started_at"

// StartTimer records a started timer. A repeated start with the same
// extern_id returns the timer recorded the first time.
func (db *DB) StartTimer(ctx context.Context, in models.StartTimerInput) (*models.Timer, error) {
	id := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO timers (id, extern_id, timer_type, duration_seconds, task_id, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(extern_id) DO NOTHING`,
		id, nullString(in.ExternID), in.Type, in.DurationSeconds, nullString(in.TaskID), time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}

	query := "SELECT " + timerColumns + " FROM timers WHERE id = ?"
	key := id
	if in.ExternID != "" {
		query = "SELECT " + timerColumns + " FROM timers WHERE extern_id = ?"
		key = in.ExternID
	}
	return scanTimer(db.conn.QueryRowContext(ctx, query, key))
}

// ListTimers returns timers, most recently started first
func (db *DB) ListTimers(ctx context.Context) ([]models.Timer, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+timerColumns+" FROM timers ORDER BY started_at DESC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	defer rows.Close()

	var timers []models.Timer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, *timer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timers: %w", err)
	}

	return timers, nil
}

// CountTimers returns the number of recorded timers
func (db *DB) CountTimers(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM timers").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count timers: %w", err)
	}
	return count, nil
}

func scanTimer(row rowScanner) (*models.Timer, error) {
	var (
		timer     models.Timer
		externID  sql.NullString
		taskID    sql.NullString
		startedAt int64
	)

	err := row.Scan(&timer.ID, &externID, &timer.Type, &timer.DurationSeconds, &taskID, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan timer: %w", err)
	}

	timer.ExternID = externID.String
	timer.TaskID = taskID.String
	timer.StartedAt = time.UnixMilli(startedAt).UTC()

	return &timer, nil
}
