package syncer

import (
	"log/slog"
	"time"
)

// Change summarizes a sync cycle that applied actions or changed the cached
// task list.
type Change struct {
	LastSyncedAt time.Time
	TaskCount    int
	AppliedCount int
}

// ChangeNotifier tells renderers to redraw. Delivery is best effort; the
// synchronizer never waits on it.
type ChangeNotifier interface {
	NotifyChanged(Change)
}

// NotifierFunc adapts a function to ChangeNotifier.
type NotifierFunc func(Change)

func (f NotifierFunc) NotifyChanged(c Change) { f(c) }

// Notifiers fans a change out to every notifier in order.
type Notifiers []ChangeNotifier

func (n Notifiers) NotifyChanged(c Change) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.NotifyChanged(c)
		}
	}
}

// LogNotifier only logs changes. It is used when no renderer group is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) NotifyChanged(c Change) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("task list changed",
		"tasks", c.TaskCount,
		"applied", c.AppliedCount,
		"synced_at", c.LastSyncedAt.Format(time.RFC3339),
	)
}
