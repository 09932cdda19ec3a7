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

const taskColumns = "id, extern_id, title, completed, due_date, created_at, completed_at"

// CreateTask creates a new task. When externID is set and a task with that
// extern_id already exists, the existing task is returned unchanged.
func (db *DB) CreateTask(ctx context.Context, externID, title string, dueDate *time.Time) (*models.Task, error) {
	id := uuid.NewString()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, extern_id, title, completed, due_date, created_at)
		 VALUES (?, ?, ?, 0, ?, ?)
		 ON CONFLICT(extern_id) DO NOTHING`,
		id, nullString(externID), title, nullMillis(dueDate), time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if externID != "" {
		return db.GetTaskByExternID(ctx, externID)
	}
	return db.GetTask(ctx, id)
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	return scanTask(row)
}

// GetTaskByExternID retrieves a task by its idempotency key
func (db *DB) GetTaskByExternID(ctx context.Context, externID string) (*models.Task, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE extern_id = ?", externID)
	return scanTask(row)
}

// ListTasks retrieves all tasks, oldest first
func (db *DB) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks ORDER BY created_at ASC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// CompleteTask marks a task as completed. Completing an already completed
// task keeps its original completion time.
func (db *DB) CompleteTask(ctx context.Context, id string) (*models.Task, error) {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE tasks SET completed = 1, completed_at = COALESCE(completed_at, ?) WHERE id = ?",
		time.Now().UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return db.GetTask(ctx, id)
}

// DeleteTask deletes a task by ID
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CountTasks returns the number of tasks
func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		externID    sql.NullString
		dueDate     sql.NullInt64
		createdAt   int64
		completedAt sql.NullInt64
	)

	err := row.Scan(&task.ID, &externID, &task.Title, &task.IsCompleted, &dueDate, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.ExternID = externID.String
	task.DueDate = millisPtr(dueDate)
	task.CreatedAt = time.UnixMilli(createdAt).UTC()
	task.CompletedAt = millisPtr(completedAt)

	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
