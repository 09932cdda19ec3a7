package taskstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/database"
)

func newTestLocal(t *testing.T) (*Local, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewLocal(db), db
}

func TestLocal_AddTaskIdempotent(t *testing.T) {
	l, db := newTestLocal(t)
	ctx := context.Background()

	first, err := l.ApplyAddTask(ctx, "action-1", action.AddTask{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("ApplyAddTask: %v", err)
	}
	second, err := l.ApplyAddTask(ctx, "action-1", action.AddTask{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("ApplyAddTask (repeat): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeat apply created %s, want %s", second.ID, first.ID)
	}

	n, err := db.CountTasks(ctx)
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	if n != 1 {
		t.Errorf("CountTasks = %d, want 1", n)
	}
}

func TestLocal_CompleteTask(t *testing.T) {
	l, _ := newTestLocal(t)
	ctx := context.Background()

	if err := l.ApplyCompleteTask(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	task, err := l.ApplyAddTask(ctx, "a", action.AddTask{Title: "Vacuum"})
	if err != nil {
		t.Fatalf("ApplyAddTask: %v", err)
	}
	if err := l.ApplyCompleteTask(ctx, task.ID); err != nil {
		t.Fatalf("ApplyCompleteTask: %v", err)
	}

	tasks, err := l.FetchAllTasks(ctx)
	if err != nil {
		t.Fatalf("FetchAllTasks: %v", err)
	}
	if len(tasks) != 1 || !tasks[0].IsCompleted {
		t.Errorf("tasks = %+v, want one completed task", tasks)
	}
}

func TestLocal_StartTimer(t *testing.T) {
	l, db := newTestLocal(t)
	ctx := context.Background()

	p := action.StartTimer{TimerType: "laundry", DurationSeconds: 2700}
	for i := 0; i < 2; i++ {
		if err := l.NotifyStartTimer(ctx, "timer-action", p); err != nil {
			t.Fatalf("NotifyStartTimer: %v", err)
		}
	}

	n, err := db.CountTimers(ctx)
	if err != nil {
		t.Fatalf("CountTimers: %v", err)
	}
	if n != 1 {
		t.Errorf("CountTimers = %d, want 1", n)
	}
}

func TestLocal_ClosedDatabaseUnreachable(t *testing.T) {
	l, db := newTestLocal(t)
	_ = db.Close()

	if _, err := l.FetchAllTasks(context.Background()); !errors.Is(err, ErrStoreUnreachable) {
		t.Errorf("err = %v, want ErrStoreUnreachable", err)
	}
}
