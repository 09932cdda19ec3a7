package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/projection"
	"github.com/c.mueller/househelper-sync/internal/queue"
	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/c.mueller/househelper-sync/internal/worker"
	"github.com/danielgtaylor/huma/v2"
)

// ActionQueue is the queue as seen by local producers
type ActionQueue interface {
	EnqueuePayload(ctx context.Context, kind action.Kind, fields map[string]any, createdAt time.Time) (action.Record, bool, error)
	DrainAll(ctx context.Context) (queue.Batch, error)
	Pending(ctx context.Context) (int, error)
}

// ProjectionReader serves the cached task list
type ProjectionReader interface {
	Read(ctx context.Context) projection.Snapshot
}

// Syncer runs one sync cycle on request
type Syncer interface {
	RunSyncCycle(ctx context.Context) (syncer.Result, error)
}

// StatusSource reports the background worker's last cycle
type StatusSource interface {
	Status() worker.Status
}

// AgentServer is the device-local API used by widgets, shortcuts and voice
// intents that cannot write the state directory themselves.
type AgentServer struct {
	queue      ActionQueue
	projection ProjectionReader
	syncer     Syncer
	status     StatusSource
	cluster    Cluster
}

// NewAgentServer creates the agent API. status and cluster may be nil.
func NewAgentServer(q ActionQueue, p ProjectionReader, s Syncer, status StatusSource, cluster Cluster) *AgentServer {
	return &AgentServer{
		queue:      q,
		projection: p,
		syncer:     s,
		status:     status,
		cluster:    cluster,
	}
}

// RegisterRoutes registers all agent routes with the Huma API
func (a *AgentServer) RegisterRoutes(api huma.API) {
	registerHealthReady(api, a.cluster)

	huma.Register(api, huma.Operation{
		OperationID: "health-info",
		Method:      http.MethodGet,
		Path:        "/health/info",
		Summary:     "Agent information",
		Description: "Get queue depth, projection age, last sync cycle and cluster members",
		Tags:        []string{"health"},
	}, a.healthInfo)

	// POST /actions - Queue a user action
	huma.Register(api, huma.Operation{
		OperationID:   "enqueue-action",
		Method:        http.MethodPost,
		Path:          "/actions",
		Summary:       "Queue an action",
		Description:   "Durably queue a user action for the next sync cycle. Redelivering an action with the same kind, key fields and createdAt queues it once.",
		Tags:          []string{"actions"},
		DefaultStatus: http.StatusAccepted,
	}, a.enqueueAction)

	// GET /actions - List queued actions
	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/actions",
		Summary:     "List queued actions",
		Description: "Get the actions waiting for the next sync cycle, in application order",
		Tags:        []string{"actions"},
	}, a.listActions)

	// GET /projection - Cached task list
	huma.Register(api, huma.Operation{
		OperationID: "get-projection",
		Method:      http.MethodGet,
		Path:        "/projection",
		Summary:     "Cached task list",
		Description: "Get the last synced task list. Never contacts the task service.",
		Tags:        []string{"projection"},
	}, a.getProjection)

	// POST /sync - Run a sync cycle now
	huma.Register(api, huma.Operation{
		OperationID: "run-sync",
		Method:      http.MethodPost,
		Path:        "/sync",
		Summary:     "Sync now",
		Description: "Run one sync cycle and return its outcome. Returns status already_running if a cycle is in progress.",
		Tags:        []string{"sync"},
	}, a.runSync)
}

type EnqueueActionRequest struct {
	Body struct {
		Kind    string         `json:"kind" enum:"complete_task,add_task,start_timer" doc:"Action kind"`
		Payload map[string]any `json:"payload" doc:"Kind-specific fields: taskId, title, dueDate, timerType, durationSeconds"`
		// Producers that may redeliver set this to when the user acted.
		CreatedAt *int64 `json:"createdAt,omitempty" minimum:"1" doc:"When the user acted, unix milliseconds. Defaults to the time of the request."`
	}
}

type QueuedAction struct {
	ID        string         `json:"id" doc:"Derived action id"`
	Kind      string         `json:"kind"`
	CreatedAt time.Time      `json:"createdAt"`
	Payload   map[string]any `json:"payload"`
}

type EnqueueActionResponse struct {
	Body struct {
		QueuedAction
		Queued bool `json:"queued" doc:"False when the same action was already queued"`
	}
}

type MalformedAction struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type ListActionsResponse struct {
	Body struct {
		Actions   []QueuedAction    `json:"actions"`
		Malformed []MalformedAction `json:"malformed,omitempty"`
	}
}

type ProjectionResponse struct {
	Body projection.Snapshot
}

type SyncResponse struct {
	Body syncer.Result
}

func queuedAction(rec action.Record) QueuedAction {
	return QueuedAction{
		ID:        rec.ID,
		Kind:      string(rec.Kind()),
		CreatedAt: rec.CreatedAt,
		Payload:   action.Fields(rec.Payload),
	}
}

func (a *AgentServer) enqueueAction(ctx context.Context, input *EnqueueActionRequest) (*EnqueueActionResponse, error) {
	var createdAt time.Time
	if input.Body.CreatedAt != nil {
		createdAt = time.UnixMilli(*input.Body.CreatedAt)
	}

	rec, inserted, err := a.queue.EnqueuePayload(ctx, action.Kind(input.Body.Kind), input.Body.Payload, createdAt)
	if errors.Is(err, action.ErrMalformedRecord) {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("Action queue unavailable", err)
	}

	resp := &EnqueueActionResponse{}
	resp.Body.QueuedAction = queuedAction(rec)
	resp.Body.Queued = inserted
	return resp, nil
}

func (a *AgentServer) listActions(ctx context.Context, input *struct{}) (*ListActionsResponse, error) {
	batch, err := a.queue.DrainAll(ctx)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("Action queue unavailable", err)
	}

	resp := &ListActionsResponse{}
	resp.Body.Actions = make([]QueuedAction, 0, len(batch.Records))
	for _, rec := range batch.Records {
		resp.Body.Actions = append(resp.Body.Actions, queuedAction(rec))
	}
	for _, m := range batch.Malformed {
		resp.Body.Malformed = append(resp.Body.Malformed, MalformedAction{ID: m.ID, Reason: m.Reason})
	}
	return resp, nil
}

func (a *AgentServer) getProjection(ctx context.Context, input *struct{}) (*ProjectionResponse, error) {
	return &ProjectionResponse{Body: a.projection.Read(ctx)}, nil
}

func (a *AgentServer) runSync(ctx context.Context, input *struct{}) (*SyncResponse, error) {
	result, err := a.syncer.RunSyncCycle(ctx)
	if err != nil && result.Status == syncer.StatusAborted {
		return nil, huma.Error503ServiceUnavailable("Sync cycle aborted", err)
	}
	// Other errors leave a completed cycle behind; the result says what happened.
	return &SyncResponse{Body: result}, nil
}

type AgentInfoResponse struct {
	Body struct {
		ClusterInfo
		PendingActions int            `json:"pending_actions" doc:"Number of queued actions"`
		CachedTasks    int            `json:"cached_tasks" doc:"Number of tasks in the projection"`
		LastSyncedAt   *time.Time     `json:"last_synced_at,omitempty" doc:"When the projection was last written"`
		Worker         *worker.Status `json:"worker,omitempty" doc:"Last background cycle"`
	}
}

func (a *AgentServer) healthInfo(ctx context.Context, input *struct{}) (*AgentInfoResponse, error) {
	resp := &AgentInfoResponse{}
	resp.Body.ClusterInfo = clusterInfo(a.cluster)

	pending, err := a.queue.Pending(ctx)
	if err != nil {
		pending = -1 // Indicate error
	}
	resp.Body.PendingActions = pending

	snap := a.projection.Read(ctx)
	resp.Body.CachedTasks = len(snap.Tasks)
	resp.Body.LastSyncedAt = snap.LastSyncedAt

	if a.status != nil {
		st := a.status.Status()
		resp.Body.Worker = &st
	}

	return resp, nil
}
