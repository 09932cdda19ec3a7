package cluster

// User events exchanged by the renderer group
const (
	// EventTasksChanged tells renderers to re-read the task projection.
	EventTasksChanged = "tasks:changed"
	// EventSyncNow asks the node running the sync agent for an immediate cycle.
	EventSyncNow = "sync:now"
)

// Query types for cluster communication
const (
	QuerySyncStatus = "sync:status"
)

// ChangeEvent is the payload of EventTasksChanged
type ChangeEvent struct {
	NodeID       string `json:"node_id"`
	TaskCount    int    `json:"task_count"`
	AppliedCount int    `json:"applied_count"`
	SyncedAt     int64  `json:"synced_at"` // unix millis
}

// SyncRequestEvent is the payload of EventSyncNow
type SyncRequestEvent struct {
	NodeID    string `json:"node_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StatusResponse answers QuerySyncStatus
type StatusResponse struct {
	NodeID       string `json:"node_id"`
	TaskCount    int    `json:"task_count"`
	LastSyncedAt int64  `json:"last_synced_at"` // unix millis, 0 if never synced
}
