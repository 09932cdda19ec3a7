// Package taskstore is the synchronizer's view of the authoritative task
// store. Client talks to the task service over HTTP; Local applies actions to
// an in-process database.
package taskstore

import (
	"context"
	"errors"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/models"
)

var (
	// ErrStoreUnreachable means the action may be retried later.
	ErrStoreUnreachable = errors.New("authoritative store unreachable")

	// ErrNotFound means the target task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrRejected means the store refused the request (auth, validation,
	// method). The synchronizer keeps the action queued.
	ErrRejected = errors.New("action rejected by authoritative store")
)

// Store applies queued actions and serves the task list.
//
// actionID is the id of the record being applied. Implementations use it as an
// idempotency key so a record that is applied twice creates one task or timer.
type Store interface {
	ApplyAddTask(ctx context.Context, actionID string, p action.AddTask) (models.TaskSnapshot, error)
	ApplyCompleteTask(ctx context.Context, taskID string) error
	NotifyStartTimer(ctx context.Context, actionID string, p action.StartTimer) error
	FetchAllTasks(ctx context.Context) ([]models.TaskSnapshot, error)
}
