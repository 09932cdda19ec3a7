// Package cluster connects the processes that render the task projection into
// a serf gossip group. The sync agent broadcasts a change event after each
// cycle that altered the task list; renderers re-read the projection when it
// arrives. Any member can ask the agent for an immediate cycle.
package cluster

import (
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c.mueller/househelper-sync/internal/models"
	"github.com/hashicorp/serf/serf"
)

// Options configures a cluster member
type Options struct {
	NodeName      string
	BindAddr      string // host:port
	AdvertiseAddr string // host:port, optional
	EncryptKey    string // base64, optional
}

// StatusFunc reports the local projection for QuerySyncStatus
type StatusFunc func() StatusResponse

// Cluster manages the Serf membership and event fan-out
type Cluster struct {
	serf     *serf.Serf
	nodeID   string
	eventCh  chan serf.Event
	shutdown chan struct{}
	ready    atomic.Bool
	readyCh  chan struct{}
	stopped  atomic.Bool

	mu             sync.RWMutex
	changeHandlers []func(ChangeEvent)
	syncHandler    func(SyncRequestEvent)
	status         StatusFunc
}

// New creates a new Cluster instance
func New(opts Options) (*Cluster, error) {
	host, port, err := splitHostPort(opts.BindAddr)
	if err != nil {
		return nil, err
	}

	// Create Serf configuration
	config := serf.DefaultConfig()
	config.NodeName = opts.NodeName
	config.MemberlistConfig.BindAddr = host
	config.MemberlistConfig.BindPort = port
	config.LogOutput = log.Writer()

	if opts.AdvertiseAddr != "" {
		advHost, advPort, err := splitHostPort(opts.AdvertiseAddr)
		if err != nil {
			return nil, err
		}
		config.MemberlistConfig.AdvertiseAddr = advHost
		config.MemberlistConfig.AdvertisePort = advPort
	}

	if opts.EncryptKey != "" {
		key, err := base64.StdEncoding.DecodeString(opts.EncryptKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encrypt key: %w", err)
		}
		config.MemberlistConfig.SecretKey = key
	}

	eventCh := make(chan serf.Event, 256)
	config.EventCh = eventCh

	cluster := &Cluster{
		nodeID:   opts.NodeName,
		eventCh:  eventCh,
		shutdown: make(chan struct{}),
		readyCh:  make(chan struct{}),
	}

	serfInstance, err := serf.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create serf: %w", err)
	}
	cluster.serf = serfInstance

	return cluster, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in address %q: %w", addr, err)
	}
	return host, port, nil
}

// OnChange registers fn to run for every change event from another member.
func (c *Cluster) OnChange(fn func(ChangeEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeHandlers = append(c.changeHandlers, fn)
}

// OnSyncRequest registers fn to run when a member requests a sync cycle.
func (c *Cluster) OnSyncRequest(fn func(SyncRequestEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncHandler = fn
}

// SetStatusProvider makes this node answer status queries.
func (c *Cluster) SetStatusProvider(fn StatusFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = fn
}

// Start starts the cluster and joins the seed nodes
func (c *Cluster) Start(seeds []string, joinTimeout time.Duration) error {
	go c.handleEvents()

	if len(seeds) == 0 {
		log.Println("[INFO] No seeds configured, starting as first node")
		c.markReady()
		return nil
	}

	log.Printf("[INFO] Attempting to join cluster via seeds: %v", seeds)

	maxRetries := 3
	var lastErr error
	joined := false

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(i) * 2 * time.Second
			log.Printf("[INFO] Retry %d/%d in %v...", i+1, maxRetries, backoff)
			time.Sleep(backoff)
		}

		numJoined, err := c.serf.Join(seeds, true)
		if err != nil {
			lastErr = err
			log.Printf("[WARN] Join attempt %d failed: %v", i+1, err)
			continue
		}

		if numJoined > 0 {
			log.Printf("[INFO] Successfully joined %d nodes", numJoined)
			joined = true
			break
		}
	}

	if !joined {
		if lastErr != nil {
			log.Printf("[WARN] Failed to join after %d attempts: %v", maxRetries, lastErr)
		}
		log.Println("[INFO] Continuing as standalone node")
		c.markReady()
		return nil
	}

	// The join event kicks off a status query; wait for it to finish.
	select {
	case <-c.readyCh:
		log.Println("[INFO] Node is ready")
	case <-time.After(joinTimeout):
		log.Printf("[WARN] Status query timeout after %v, continuing anyway", joinTimeout)
		c.markReady()
	}

	return nil
}

// Stop gracefully shuts down the cluster
func (c *Cluster) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}

	log.Println("[INFO] Shutting down cluster...")
	close(c.shutdown)

	if err := c.serf.Leave(); err != nil {
		log.Printf("[WARN] Error leaving cluster: %v", err)
	}

	if err := c.serf.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown serf: %w", err)
	}

	log.Println("[INFO] Cluster shutdown complete")
	return nil
}

// LocalNode returns the local node name
func (c *Cluster) LocalNode() string {
	return c.nodeID
}

// Addr returns the address other members join through.
func (c *Cluster) Addr() string {
	m := c.serf.LocalMember()
	return net.JoinHostPort(m.Addr.String(), strconv.Itoa(int(m.Port)))
}

func (c *Cluster) markReady() {
	if c.ready.CompareAndSwap(false, true) {
		close(c.readyCh)
	}
}

// IsReady returns true once the node joined (or gave up joining)
func (c *Cluster) IsReady() bool {
	return c.ready.Load()
}

// GetMemberInfo returns information about all cluster members
func (c *Cluster) GetMemberInfo() []models.ClusterMemberInfo {
	members := c.serf.Members()
	info := make([]models.ClusterMemberInfo, len(members))

	for i, member := range members {
		info[i] = models.ClusterMemberInfo{
			Name:   member.Name,
			Addr:   member.Addr.String(),
			Status: member.Status.String(),
		}
	}

	return info
}

// MemberCount returns the number of cluster members
func (c *Cluster) MemberCount() int {
	return len(c.serf.Members())
}
