package cluster

import (
	"encoding/json"
	"log"

	"github.com/hashicorp/serf/serf"
)

// handleEvents processes Serf events from the event channel
func (c *Cluster) handleEvents() {
	for {
		select {
		case event := <-c.eventCh:
			switch e := event.(type) {
			case serf.MemberEvent:
				c.handleMemberEvent(e)
			case serf.UserEvent:
				c.handleUserEvent(e)
			case *serf.Query:
				c.handleQuery(e)
			default:
				log.Printf("[DEBUG] Unknown event type: %T", e)
			}
		case <-c.shutdown:
			log.Println("[DEBUG] Event handler shutting down")
			return
		}
	}
}

// handleMemberEvent handles cluster membership events
func (c *Cluster) handleMemberEvent(event serf.MemberEvent) {
	for _, member := range event.Members {
		switch event.Type {
		case serf.EventMemberJoin:
			log.Printf("[INFO] Node joined: %s (%s)", member.Name, member.Addr)

			// A joining node asks the group how fresh its projection is.
			if member.Name == c.nodeID {
				go c.requestStatus()
			}

		case serf.EventMemberLeave:
			log.Printf("[INFO] Node left gracefully: %s", member.Name)

		case serf.EventMemberFailed:
			log.Printf("[WARN] Node failed: %s", member.Name)

		case serf.EventMemberUpdate:
			log.Printf("[INFO] Node updated: %s", member.Name)

		case serf.EventMemberReap:
			log.Printf("[INFO] Node reaped: %s", member.Name)
		}
	}
}

// handleUserEvent dispatches change and sync-request events
func (c *Cluster) handleUserEvent(event serf.UserEvent) {
	switch event.Name {
	case EventTasksChanged:
		c.handleTasksChanged(event.Payload)
	case EventSyncNow:
		c.handleSyncNow(event.Payload)
	default:
		log.Printf("[WARN] Unknown user event: %s", event.Name)
	}
}

func (c *Cluster) handleTasksChanged(payload []byte) {
	var event ChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("[ERROR] Failed to unmarshal tasks changed event: %v", err)
		return
	}

	// Skip if from myself
	if event.NodeID == c.nodeID {
		return
	}

	log.Printf("[INFO] Received tasks changed from %s (%d tasks, %d applied)",
		event.NodeID, event.TaskCount, event.AppliedCount)

	c.mu.RLock()
	handlers := append([]func(ChangeEvent){}, c.changeHandlers...)
	c.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (c *Cluster) handleSyncNow(payload []byte) {
	var event SyncRequestEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("[ERROR] Failed to unmarshal sync request: %v", err)
		return
	}

	c.mu.RLock()
	handler := c.syncHandler
	c.mu.RUnlock()

	if handler == nil {
		return
	}

	log.Printf("[INFO] Sync requested by %s: %s", event.NodeID, event.Reason)
	handler(event)
}
