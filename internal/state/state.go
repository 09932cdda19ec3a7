// Package state opens the device-local state shared by every process: the
// action queue, the task projection and the sync lock, all under one
// directory.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/c.mueller/househelper-sync/internal/database"
	"github.com/c.mueller/househelper-sync/internal/projection"
	"github.com/c.mueller/househelper-sync/internal/queue"
	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/c.mueller/househelper-sync/internal/taskstore"
)

// State is an open state directory.
type State struct {
	Dir        string
	Queue      *queue.Store
	Projection *projection.Cache

	conn *sql.DB
}

// Open opens (creating if needed) the state directory at dir.
func Open(dir string) (*State, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create state directory: %v", queue.ErrStoreUnavailable, err)
	}

	conn, err := database.OpenState(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", queue.ErrStoreUnavailable, err)
	}

	q, err := queue.New(conn, dir)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	p, err := projection.New(conn, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &State{Dir: dir, Queue: q, Projection: p, conn: conn}, nil
}

// LockPath is the sync lock file shared by every process using dir.
func (s *State) LockPath() string {
	return filepath.Join(s.Dir, syncer.LockFileName)
}

// NewSynchronizer builds a synchronizer over this state that applies actions
// to store.
func (s *State) NewSynchronizer(store taskstore.Store, notifier syncer.ChangeNotifier, opts syncer.Options) *syncer.Synchronizer {
	opts.LockPath = s.LockPath()
	return syncer.New(s.Queue, s.Projection, store, notifier, opts)
}

// Close closes the state database.
func (s *State) Close() error {
	return s.conn.Close()
}
