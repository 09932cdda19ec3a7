package worker

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/fsnotify/fsnotify"
)

// Syncer runs one sync cycle.
type Syncer interface {
	RunSyncCycle(ctx context.Context) (syncer.Result, error)
}

// Config controls when the worker runs sync cycles.
type Config struct {
	// Interval between periodic cycles.
	Interval time.Duration
	// SignalPath is watched for writes; each write schedules a cycle after
	// Debounce. Empty disables watching.
	SignalPath string
	Debounce   time.Duration
	// SyncOnStart runs a cycle as soon as the worker starts.
	SyncOnStart bool
}

// Status is the worker's view of the most recent cycle.
type Status struct {
	Running    bool          `json:"running"`
	LastRun    *time.Time    `json:"lastRun,omitempty"`
	LastResult syncer.Result `json:"lastResult"`
	LastError  string        `json:"lastError,omitempty"`
	Cycles     int64         `json:"cycles"`
}

// Worker triggers sync cycles periodically and on demand
type Worker struct {
	syncer   Syncer
	cfg      Config
	trigger  chan struct{}
	shutdown chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	ticker   *time.Ticker
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup

	processing atomic.Bool
	rerun      atomic.Bool
	cycles     atomic.Int64

	mu         sync.Mutex
	stopped    bool
	lastRun    *time.Time
	lastResult syncer.Result
	lastErr    error
}

// New creates a new worker instance
func New(s Syncer, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		syncer:   s,
		cfg:      cfg,
		trigger:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the worker loop
func (w *Worker) Start() error {
	log.Printf("[INFO] Sync worker starting (interval %v)...", w.cfg.Interval)

	if w.cfg.SignalPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		// Watch the directory: the signal file may not exist yet and some
		// writers replace it instead of writing in place.
		if err := watcher.Add(filepath.Dir(w.cfg.SignalPath)); err != nil {
			_ = watcher.Close()
			return err
		}
		w.watcher = watcher

		w.wg.Add(1)
		go w.watchLoop()
	}

	w.ticker = time.NewTicker(w.cfg.Interval)

	w.wg.Add(1)
	go w.workerLoop()

	if w.cfg.SyncOnStart {
		w.TriggerNow()
	}

	log.Printf("[INFO] Sync worker started successfully")
	return nil
}

// Stop gracefully shuts down the worker and waits for a running cycle to
// observe cancellation.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	log.Printf("[INFO] Sync worker stopping...")
	close(w.shutdown)
	w.cancel()

	if w.ticker != nil {
		w.ticker.Stop()
	}
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			log.Printf("[WARN] Failed to close queue watcher: %v", err)
		}
	}

	w.wg.Wait()
	log.Printf("[INFO] Sync worker stopped")
}

// TriggerNow requests an immediate cycle. Requests that arrive while one is
// already pending are merged into it.
func (w *Worker) TriggerNow() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the most recent cycle.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := Status{
		Running:    w.processing.Load(),
		LastRun:    w.lastRun,
		LastResult: w.lastResult,
		Cycles:     w.cycles.Load(),
	}
	if w.lastErr != nil {
		st.LastError = w.lastErr.Error()
	}
	return st
}

// workerLoop is the main worker loop
func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ticker.C:
			w.startCycle("periodic")

		case <-w.trigger:
			w.startCycle("triggered")

		case <-w.shutdown:
			log.Printf("[INFO] Sync worker loop exiting")
			return
		}
	}
}

// startCycle runs a cycle in the background unless one is in progress, in
// which case a single follow-up cycle is scheduled.
func (w *Worker) startCycle(reason string) {
	if !w.processing.CompareAndSwap(false, true) {
		w.rerun.Store(true)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		for {
			w.runCycle(reason)
			if !w.rerun.Swap(false) {
				break
			}
			reason = "follow-up"
		}
		w.processing.Store(false)

		// A request that raced with the end of the loop above.
		if w.rerun.Swap(false) {
			w.TriggerNow()
		}
	}()
}

func (w *Worker) runCycle(reason string) {
	select {
	case <-w.shutdown:
		return
	default:
	}

	log.Printf("[DEBUG] Running %s sync cycle", reason)
	result, err := w.syncer.RunSyncCycle(w.ctx)
	now := time.Now()
	w.cycles.Add(1)

	w.mu.Lock()
	w.lastRun = &now
	w.lastResult = result
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		log.Printf("[ERROR] Sync cycle failed: %v", err)
		return
	}

	if result.Status == syncer.StatusSynced {
		log.Printf("[INFO] Sync cycle: applied %d, retained %d, dropped %d",
			result.AppliedCount, result.RetainedCount, result.DroppedCount)
	}
}

// watchLoop turns writes to the signal file into debounced triggers.
func (w *Worker) watchLoop() {
	defer w.wg.Done()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(w.cfg.SignalPath)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounce == nil {
				debounce = time.AfterFunc(w.cfg.Debounce, w.TriggerNow)
			} else {
				debounce.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[WARN] Queue watcher error: %v", err)

		case <-w.shutdown:
			return
		}
	}
}
