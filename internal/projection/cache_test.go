package projection

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/c.mueller/househelper-sync/internal/database"
	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/google/go-cmp/cmp"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	conn, err := database.OpenState(t.TempDir())
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c, err := New(conn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRead_NeverSynced(t *testing.T) {
	c := newTestCache(t)

	snap := c.Read(context.Background())
	if snap.Synced() {
		t.Errorf("fresh cache reports synced at %v", snap.LastSyncedAt)
	}
	if snap.Tasks == nil || len(snap.Tasks) != 0 {
		t.Errorf("Tasks = %#v, want empty non-nil slice", snap.Tasks)
	}
	if !snap.StaleAt(time.Now(), time.Hour) {
		t.Error("never-synced snapshot should be stale")
	}
}

func TestWriteThenRead(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	due := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)
	tasks := []models.TaskSnapshot{
		{ID: "t1", Title: "Buy milk"},
		{ID: "t2", Title: "Laundry", IsCompleted: true, DueDate: &due},
	}
	syncedAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	changed, err := c.Write(ctx, tasks, syncedAt)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !changed {
		t.Error("first Write reported unchanged")
	}

	snap := c.Read(ctx)
	if diff := cmp.Diff(tasks, snap.Tasks); diff != "" {
		t.Errorf("Tasks mismatch (-want +got):\n%s", diff)
	}
	if snap.LastSyncedAt == nil || !snap.LastSyncedAt.Equal(syncedAt) {
		t.Errorf("LastSyncedAt = %v, want %v", snap.LastSyncedAt, syncedAt)
	}
}

func TestWrite_ChangeDetection(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	tasks := []models.TaskSnapshot{{ID: "t1", Title: "Buy milk"}}
	if _, err := c.Write(ctx, tasks, at); err != nil {
		t.Fatalf("Write: %v", err)
	}

	changed, err := c.Write(ctx, []models.TaskSnapshot{{ID: "t1", Title: "Buy milk"}}, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if changed {
		t.Error("identical task list reported as changed")
	}
	if got := c.Read(ctx).LastSyncedAt; !got.Equal(at.Add(time.Minute)) {
		t.Errorf("LastSyncedAt = %v, want it advanced", got)
	}

	changed, err = c.Write(ctx, []models.TaskSnapshot{{ID: "t1", Title: "Buy milk", IsCompleted: true}}, at.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !changed {
		t.Error("completed task not reported as changed")
	}
}

func TestWrite_OverwritesNotMerges(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	if _, err := c.Write(ctx, []models.TaskSnapshot{{ID: "t1", Title: "a"}, {ID: "t2", Title: "b"}}, at); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := c.Write(ctx, nil, at.Add(time.Minute)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap := c.Read(ctx)
	if len(snap.Tasks) != 0 {
		t.Errorf("Tasks = %+v, want empty after overwrite", snap.Tasks)
	}
	if !snap.Synced() {
		t.Error("empty write should still record a sync")
	}
}

func TestRead_CorruptBlob(t *testing.T) {
	c := newTestCache(t)
	if _, err := c.db.Exec(
		"INSERT INTO projection (name, body, synced_at) VALUES (?, ?, ?)", blobName, "{not json", 1,
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var logs bytes.Buffer
	c.logger = slog.New(slog.NewTextHandler(&logs, nil))

	snap := c.Read(context.Background())
	if snap.Synced() || len(snap.Tasks) != 0 {
		t.Errorf("corrupt blob read as %+v, want never-synced empty snapshot", snap)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "failed to read task projection") {
		t.Errorf("corrupt blob not logged as a warning: %q", logs.String())
	}
}

func TestStaleAt(t *testing.T) {
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	snap := Snapshot{LastSyncedAt: &at}

	if snap.StaleAt(at.Add(4*time.Minute), 5*time.Minute) {
		t.Error("4m old snapshot stale with 5m threshold")
	}
	if !snap.StaleAt(at.Add(5*time.Minute), 5*time.Minute) {
		t.Error("5m old snapshot fresh with 5m threshold")
	}
}
