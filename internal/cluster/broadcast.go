package cluster

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/c.mueller/househelper-sync/internal/syncer"
)

// NotifyChanged broadcasts a change event. Failures are logged and dropped;
// renderers fall back to the periodic refresh.
func (c *Cluster) NotifyChanged(change syncer.Change) {
	event := ChangeEvent{
		NodeID:       c.nodeID,
		TaskCount:    change.TaskCount,
		AppliedCount: change.AppliedCount,
		SyncedAt:     change.LastSyncedAt.UnixMilli(),
	}
	if err := c.broadcastEvent(EventTasksChanged, event); err != nil {
		log.Printf("[WARN] Failed to broadcast tasks changed: %v", err)
	}
}

// RequestSync asks the member running the sync agent for an immediate cycle.
func (c *Cluster) RequestSync(reason string) error {
	return c.broadcastEvent(EventSyncNow, SyncRequestEvent{
		NodeID:    c.nodeID,
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	})
}

// broadcastEvent sends a user event to the cluster
func (c *Cluster) broadcastEvent(eventName string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = c.serf.UserEvent(eventName, payload, true)
	if err != nil {
		return fmt.Errorf("failed to broadcast event: %w", err)
	}

	log.Printf("[DEBUG] Broadcasted %s", eventName)
	return nil
}
