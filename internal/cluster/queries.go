package cluster

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hashicorp/serf/serf"
)

// handleQuery handles incoming Serf queries
func (c *Cluster) handleQuery(query *serf.Query) {
	switch query.Name {
	case QuerySyncStatus:
		c.handleStatusQuery(query)
	default:
		log.Printf("[WARN] Unknown query: %s", query.Name)
	}
}

// handleStatusQuery answers with the local projection summary. Nodes without
// a status provider stay silent.
func (c *Cluster) handleStatusQuery(query *serf.Query) {
	c.mu.RLock()
	status := c.status
	c.mu.RUnlock()

	if status == nil {
		return
	}

	response := status()
	response.NodeID = c.nodeID

	data, err := json.Marshal(response)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal status response: %v", err)
		return
	}

	if err := query.Respond(data); err != nil {
		log.Printf("[ERROR] Failed to respond to query: %v", err)
		return
	}

	log.Printf("[DEBUG] Sent status (%d tasks) to %s", response.TaskCount, query.SourceNode())
}

// requestStatus asks every member for its projection summary. If a peer holds
// a newer projection than this node, the sync handler is asked to catch up.
func (c *Cluster) requestStatus() {
	defer c.markReady() // Always mark as ready when done, even on error

	log.Printf("[INFO] Requesting sync status from cluster...")

	params := &serf.QueryParam{
		RequestAck: true,
		Timeout:    5 * time.Second,
	}

	resp, err := c.serf.Query(QuerySyncStatus, nil, params)
	if err != nil {
		log.Printf("[ERROR] Failed to send status query: %v", err)
		return
	}

	var responses []StatusResponse
	for r := range resp.ResponseCh() {
		var status StatusResponse
		if err := json.Unmarshal(r.Payload, &status); err != nil {
			log.Printf("[ERROR] Failed to unmarshal response from %s: %v", r.From, err)
			continue
		}
		responses = append(responses, status)
	}

	c.mu.RLock()
	local := c.status
	handler := c.syncHandler
	c.mu.RUnlock()

	var mine StatusResponse
	if local != nil {
		mine = local()
	}

	if newest, ok := newerThan(mine, responses); ok && handler != nil {
		log.Printf("[INFO] Node %s has a newer projection, requesting local sync", newest.NodeID)
		handler(SyncRequestEvent{NodeID: newest.NodeID, Reason: "peer projection is newer", Timestamp: time.Now().Unix()})
	}

	log.Printf("[INFO] Received status from %d node(s)", len(responses))
}

// newerThan returns the freshest response that is newer than local.
func newerThan(local StatusResponse, responses []StatusResponse) (StatusResponse, bool) {
	var newest StatusResponse
	found := false
	for _, r := range responses {
		if r.LastSyncedAt > local.LastSyncedAt && r.LastSyncedAt > newest.LastSyncedAt {
			newest = r
			found = true
		}
	}
	return newest, found
}
