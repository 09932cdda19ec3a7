// Package syncer drains the action queue into the authoritative task store and
// refreshes the cached task projection.
//
// A record leaves the queue only after it was applied, found to be a no-op
// (completing a task that no longer exists), or found malformed. Any other
// failure, including a refusal by the task service, keeps it queued for the
// next cycle. Cycles never overlap on a
// device: an in-process flag and a lock file shared by every process guard
// RunSyncCycle, and a caller that loses the race gets StatusAlreadyRunning
// instead of waiting.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/filelock"
	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/c.mueller/househelper-sync/internal/projection"
	"github.com/c.mueller/househelper-sync/internal/queue"
	"github.com/c.mueller/househelper-sync/internal/taskstore"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "sync.lock"

const (
	DefaultFreshness    = 5 * time.Minute
	DefaultApplyTimeout = 10 * time.Second
)

// Status is the outcome of one call to RunSyncCycle.
type Status string

const (
	StatusNoOp           Status = "no_op"
	StatusAlreadyRunning Status = "already_running"
	StatusSynced         Status = "synced"
	StatusAborted        Status = "aborted"
)

// Result describes one call to RunSyncCycle.
type Result struct {
	Status              Status `json:"status" doc:"Outcome of the cycle"`
	AppliedCount        int    `json:"appliedCount" doc:"Actions applied and removed from the queue"`
	RetainedCount       int    `json:"retainedCount" doc:"Actions kept for the next cycle, including ones the task service refused"`
	DroppedCount        int    `json:"droppedCount" doc:"Malformed actions removed without applying"`
	ProjectionRefreshed bool   `json:"projectionRefreshed" doc:"Whether the cached task list was rewritten"`
	ProjectionChanged   bool   `json:"projectionChanged" doc:"Whether the cached task list differs from before"`
}

// Queue is the part of queue.Store the synchronizer uses.
type Queue interface {
	DrainAll(ctx context.Context) (queue.Batch, error)
	Remove(ctx context.Context, ids []string) error
}

// Projection is the part of projection.Cache the synchronizer uses.
type Projection interface {
	Read(ctx context.Context) projection.Snapshot
	Write(ctx context.Context, tasks []models.TaskSnapshot, syncedAt time.Time) (bool, error)
}

// Options tunes a Synchronizer. Zero values select the defaults.
type Options struct {
	// LockPath is the cross-process lock file. Empty disables it, leaving
	// only in-process exclusion.
	LockPath     string
	Freshness    time.Duration
	ApplyTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Synchronizer runs sync cycles.
type Synchronizer struct {
	queue      Queue
	projection Projection
	store      taskstore.Store
	notifier   ChangeNotifier

	lock         *filelock.FileLock
	running      atomic.Bool
	freshness    time.Duration
	applyTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Synchronizer. notifier may be nil.
func New(q Queue, p Projection, store taskstore.Store, notifier ChangeNotifier, opts Options) *Synchronizer {
	s := &Synchronizer{
		queue:        q,
		projection:   p,
		store:        store,
		notifier:     notifier,
		freshness:    opts.Freshness,
		applyTimeout: opts.ApplyTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if opts.LockPath != "" {
		s.lock = filelock.New(opts.LockPath)
	}
	if s.freshness <= 0 {
		s.freshness = DefaultFreshness
	}
	if s.applyTimeout <= 0 {
		s.applyTimeout = DefaultApplyTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RunSyncCycle drains the queue, applies each action in order, removes the
// ones that are done and refreshes the projection.
//
// The returned error is non-nil when the queue could not be read (Status is
// StatusAborted and nothing else was touched) or when finished records could
// not be removed (they are applied again next cycle, which the store's
// idempotency keys absorb).
func (s *Synchronizer) RunSyncCycle(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("sync cycle already running in this process")
		return Result{Status: StatusAlreadyRunning}, nil
	}
	defer s.running.Store(false)

	if s.lock != nil {
		acquired, err := s.lock.TryLock()
		if err != nil {
			return Result{Status: StatusAborted}, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !acquired {
			s.logger.Debug("sync cycle already running in another process", "lock", s.lock.Path())
			return Result{Status: StatusAlreadyRunning}, nil
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				s.logger.Error("failed to release sync lock", "error", err)
			}
		}()
	}

	// Cancelling ctx does not interrupt a cycle; the per-record and fetch
	// timeouts bound its length.
	return s.runLocked(context.WithoutCancel(ctx))
}

func (s *Synchronizer) runLocked(ctx context.Context) (Result, error) {
	batch, err := s.queue.DrainAll(ctx)
	if err != nil {
		s.logger.Error("aborting sync cycle, action queue unavailable", "error", err)
		if !errors.Is(err, queue.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", queue.ErrStoreUnavailable, err)
		}
		return Result{Status: StatusAborted}, err
	}

	if batch.Empty() {
		cached := s.projection.Read(ctx)
		if !cached.StaleAt(s.now(), s.freshness) {
			return Result{Status: StatusNoOp}, nil
		}
		s.logger.Debug("queue empty, refreshing stale projection")
	}

	result := Result{Status: StatusSynced}
	var done []string

	for _, m := range batch.Malformed {
		s.logger.Error("dropping malformed action", "id", m.ID, "reason", m.Reason)
		done = append(done, m.ID)
		result.DroppedCount++
	}

	for _, rec := range batch.Records {
		err := s.apply(ctx, rec)
		switch {
		case err == nil:
			done = append(done, rec.ID)
			result.AppliedCount++

		case errors.Is(err, action.ErrMalformedRecord):
			s.logger.Error("dropping malformed action", "id", rec.ID, "kind", rec.Kind(), "error", err)
			done = append(done, rec.ID)
			result.DroppedCount++

		case errors.Is(err, taskstore.ErrRejected):
			s.logger.Error("action refused by task service, keeping it queued", "id", rec.ID, "kind", rec.Kind(), "error", err)
			result.RetainedCount++

		default:
			s.logger.Warn("action not applied, keeping it queued", "id", rec.ID, "kind", rec.Kind(), "error", err)
			result.RetainedCount++
		}
	}

	var removeErr error
	if len(done) > 0 {
		if err := s.queue.Remove(ctx, done); err != nil {
			s.logger.Error("failed to remove finished actions", "count", len(done), "error", err)
			removeErr = fmt.Errorf("failed to remove finished actions: %w", err)
		}
	}

	taskCount := s.refreshProjection(ctx, &result)

	if result.AppliedCount > 0 || result.ProjectionChanged {
		s.notify(Change{
			LastSyncedAt: s.now().UTC(),
			TaskCount:    taskCount,
			AppliedCount: result.AppliedCount,
		})
	}

	s.logger.Info("sync cycle finished",
		"applied", result.AppliedCount,
		"retained", result.RetainedCount,
		"dropped", result.DroppedCount,
		"projection_refreshed", result.ProjectionRefreshed,
		"projection_changed", result.ProjectionChanged,
	)

	return result, removeErr
}

// apply sends one record to the authoritative store.
func (s *Synchronizer) apply(ctx context.Context, rec action.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.applyTimeout)
	defer cancel()

	switch p := rec.Payload.(type) {
	case action.AddTask:
		task, err := s.store.ApplyAddTask(ctx, rec.ID, p)
		if err != nil {
			return err
		}
		s.logger.Debug("applied add_task", "id", rec.ID, "task_id", task.ID)
		return nil

	case action.CompleteTask:
		err := s.store.ApplyCompleteTask(ctx, p.TaskID)
		if errors.Is(err, taskstore.ErrNotFound) {
			s.logger.Info("task to complete no longer exists, treating as applied", "id", rec.ID, "task_id", p.TaskID)
			return nil
		}
		return err

	case action.StartTimer:
		return s.store.NotifyStartTimer(ctx, rec.ID, p)
	}

	return fmt.Errorf("%w: unsupported payload %T", action.ErrMalformedRecord, rec.Payload)
}

// refreshProjection overwrites the cache with the authoritative list. On any
// failure the existing cache is left alone. It returns the task count of the
// projection after the call.
func (s *Synchronizer) refreshProjection(ctx context.Context, result *Result) int {
	fetchCtx, cancel := context.WithTimeout(ctx, s.applyTimeout)
	defer cancel()

	tasks, err := s.store.FetchAllTasks(fetchCtx)
	if err != nil {
		s.logger.Warn("failed to fetch tasks, keeping cached projection", "error", err)
		return len(s.projection.Read(ctx).Tasks)
	}

	changed, err := s.projection.Write(ctx, tasks, s.now())
	if err != nil {
		s.logger.Error("failed to write projection", "error", err)
		return len(s.projection.Read(ctx).Tasks)
	}

	result.ProjectionRefreshed = true
	result.ProjectionChanged = changed
	return len(tasks)
}

func (s *Synchronizer) notify(c Change) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyChanged(c)
}
