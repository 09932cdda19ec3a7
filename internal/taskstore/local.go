package taskstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/database"
	"github.com/c.mueller/househelper-sync/internal/models"
)

// Local is a Store over a database owned by the same process.
type Local struct {
	db *database.DB
}

// NewLocal creates a Local store over db.
func NewLocal(db *database.DB) *Local {
	return &Local{db: db}
}

func (l *Local) ApplyAddTask(ctx context.Context, actionID string, p action.AddTask) (models.TaskSnapshot, error) {
	task, err := l.db.CreateTask(ctx, actionID, p.Title, p.DueDate)
	if err != nil {
		return models.TaskSnapshot{}, unreachable(err)
	}
	return task.Snapshot(), nil
}

func (l *Local) ApplyCompleteTask(ctx context.Context, taskID string) error {
	if _, err := l.db.CompleteTask(ctx, taskID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return unreachable(err)
	}
	return nil
}

func (l *Local) NotifyStartTimer(ctx context.Context, actionID string, p action.StartTimer) error {
	_, err := l.db.StartTimer(ctx, models.StartTimerInput{
		Type:            p.TimerType,
		DurationSeconds: p.DurationSeconds,
		TaskID:          p.TaskID,
		ExternID:        actionID,
	})
	if err != nil {
		return unreachable(err)
	}
	return nil
}

func (l *Local) FetchAllTasks(ctx context.Context) ([]models.TaskSnapshot, error) {
	tasks, err := l.db.ListTasks(ctx)
	if err != nil {
		return nil, unreachable(err)
	}

	snapshots := make([]models.TaskSnapshot, 0, len(tasks))
	for _, task := range tasks {
		snapshots = append(snapshots, task.Snapshot())
	}
	return snapshots, nil
}

// unreachable classifies a database failure as retryable.
func unreachable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
}
