package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/database"
	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/c.mueller/househelper-sync/internal/projection"
	"github.com/c.mueller/househelper-sync/internal/queue"
	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/danielgtaylor/huma/v2/humatest"
)

type stubSyncer struct {
	result syncer.Result
	err    error
	calls  int
}

func (s *stubSyncer) RunSyncCycle(ctx context.Context) (syncer.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubCluster struct{ ready bool }

func (c stubCluster) IsReady() bool     { return c.ready }
func (c stubCluster) LocalNode() string { return "agent-1" }
func (c stubCluster) MemberCount() int  { return 2 }
func (c stubCluster) GetMemberInfo() []models.ClusterMemberInfo {
	return []models.ClusterMemberInfo{{Name: "agent-1"}, {Name: "renderer"}}
}

type agentFixture struct {
	api   humatest.TestAPI
	queue *queue.Store
	cache *projection.Cache
	sync  *stubSyncer
}

func newAgentAPI(t *testing.T, cluster Cluster) agentFixture {
	t.Helper()
	dir := t.TempDir()
	conn, err := database.OpenState(dir)
	if err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	q, err := queue.New(conn, dir)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	c, err := projection.New(conn, nil)
	if err != nil {
		t.Fatalf("projection.New: %v", err)
	}

	s := &stubSyncer{result: syncer.Result{Status: syncer.StatusSynced, AppliedCount: 1}}
	_, api := humatest.New(t)
	NewAgentServer(q, c, s, nil, cluster).RegisterRoutes(api)
	return agentFixture{api: api, queue: q, cache: c, sync: s}
}

func TestEnqueueAction(t *testing.T) {
	f := newAgentAPI(t, nil)

	resp := f.api.Post("/actions", map[string]any{
		"kind":    "start_timer",
		"payload": map[string]any{"timerType": "laundry", "durationSeconds": 2700},
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("POST /actions = %d: %s", resp.Code, resp.Body.String())
	}

	got := decode[map[string]any](t, resp.Body.Bytes())
	if got["queued"] != true || got["kind"] != "start_timer" || got["id"] == "" {
		t.Errorf("response = %v", got)
	}

	n, err := f.queue.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if n != 1 {
		t.Errorf("Pending = %d, want 1", n)
	}
}

func TestEnqueueAction_RedeliveryQueuedOnce(t *testing.T) {
	f := newAgentAPI(t, nil)

	tapped := time.Date(2026, 3, 14, 8, 59, 58, 0, time.UTC).UnixMilli()
	body := map[string]any{
		"kind":      "add_task",
		"payload":   map[string]any{"title": "Buy milk"},
		"createdAt": tapped,
	}

	first := f.api.Post("/actions", body)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first POST /actions = %d: %s", first.Code, first.Body.String())
	}
	second := f.api.Post("/actions", body)
	if second.Code != http.StatusAccepted {
		t.Fatalf("second POST /actions = %d: %s", second.Code, second.Body.String())
	}

	a := decode[map[string]any](t, first.Body.Bytes())
	b := decode[map[string]any](t, second.Body.Bytes())
	if a["queued"] != true || b["queued"] != false {
		t.Errorf("queued = %v, %v; want true, false", a["queued"], b["queued"])
	}
	if a["id"] != b["id"] {
		t.Errorf("ids differ: %v, %v", a["id"], b["id"])
	}

	n, err := f.queue.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if n != 1 {
		t.Errorf("Pending = %d, want 1", n)
	}
}

func TestEnqueueAction_Malformed(t *testing.T) {
	f := newAgentAPI(t, nil)

	tests := []map[string]any{
		{"kind": "add_task", "payload": map[string]any{}},
		{"kind": "start_timer", "payload": map[string]any{"timerType": "laundry", "durationSeconds": -5}},
		{"kind": "start_timer", "payload": map[string]any{"timerType": "laundry", "durationSeconds": 1.5}},
		{"kind": "water_plants", "payload": map[string]any{}},
		{"kind": "complete_task", "payload": map[string]any{"taskId": "t1"}, "createdAt": -1},
	}
	for _, body := range tests {
		if resp := f.api.Post("/actions", body); resp.Code != http.StatusUnprocessableEntity {
			t.Errorf("POST /actions %v = %d, want 422", body, resp.Code)
		}
	}
}

func TestListActions(t *testing.T) {
	f := newAgentAPI(t, nil)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	second := action.New(action.CompleteTask{TaskID: "t1"}, t0.Add(time.Second))
	first := action.New(action.AddTask{Title: "Buy milk"}, t0)
	for _, rec := range []action.Record{second, first} {
		if _, err := f.queue.Enqueue(ctx, rec); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	resp := f.api.Get("/actions")
	if resp.Code != http.StatusOK {
		t.Fatalf("GET /actions = %d", resp.Code)
	}

	body := decode[struct {
		Actions []QueuedAction `json:"actions"`
	}](t, resp.Body.Bytes())

	if len(body.Actions) != 2 || body.Actions[0].ID != first.ID || body.Actions[1].ID != second.ID {
		t.Errorf("actions = %+v", body.Actions)
	}
	if body.Actions[0].Payload["title"] != "Buy milk" {
		t.Errorf("payload = %v", body.Actions[0].Payload)
	}
}

func TestGetProjection(t *testing.T) {
	f := newAgentAPI(t, nil)

	never := decode[projection.Snapshot](t, f.api.Get("/projection").Body.Bytes())
	if never.Synced() || len(never.Tasks) != 0 {
		t.Errorf("fresh projection = %+v", never)
	}

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if _, err := f.cache.Write(context.Background(), []models.TaskSnapshot{{ID: "t1", Title: "Buy milk"}}, at); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap := decode[projection.Snapshot](t, f.api.Get("/projection").Body.Bytes())
	if len(snap.Tasks) != 1 || snap.LastSyncedAt == nil || !snap.LastSyncedAt.Equal(at) {
		t.Errorf("projection = %+v", snap)
	}
	if f.sync.calls != 0 {
		t.Error("reading the projection ran a sync cycle")
	}
}

func TestRunSync(t *testing.T) {
	f := newAgentAPI(t, nil)

	resp := f.api.Post("/sync")
	if resp.Code != http.StatusOK {
		t.Fatalf("POST /sync = %d", resp.Code)
	}
	result := decode[syncer.Result](t, resp.Body.Bytes())
	if result.Status != syncer.StatusSynced || result.AppliedCount != 1 {
		t.Errorf("result = %+v", result)
	}

	f.sync.result = syncer.Result{Status: syncer.StatusAborted}
	f.sync.err = queue.ErrStoreUnavailable
	if resp := f.api.Post("/sync"); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("aborted POST /sync = %d, want 503", resp.Code)
	}
}

func TestAgentHealth_Cluster(t *testing.T) {
	f := newAgentAPI(t, stubCluster{ready: false})

	if resp := f.api.Get("/health/ready"); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health/ready while joining = %d, want 503", resp.Code)
	}

	info := decode[map[string]any](t, f.api.Get("/health/info").Body.Bytes())
	if info["node_name"] != "agent-1" || info["member_count"] != float64(2) || info["pending_actions"] != float64(0) {
		t.Errorf("GET /health/info = %v", info)
	}
}
