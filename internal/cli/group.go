package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/c.mueller/househelper-sync/internal/cluster"
)

// gossipFlush is how long a short-lived member stays in the group after
// broadcasting, so the event reaches peers before it leaves.
var gossipFlush = time.Second

// joinGroup joins the renderer group. setup runs before the join so no event
// is missed.
func (a *app) joinGroup(role string, setup func(*cluster.Cluster)) (*cluster.Cluster, error) {
	name := a.v.GetString(keyNodeName)
	if name == "" {
		host, _ := os.Hostname()
		name = fmt.Sprintf("%s-widgetctl-%s-%d", host, role, os.Getpid())
	}

	group, err := cluster.New(cluster.Options{
		NodeName:   name,
		BindAddr:   a.v.GetString(keySerfAddr),
		EncryptKey: a.v.GetString(keyEncryptKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group member: %w", err)
	}

	if setup != nil {
		setup(group)
	}

	joinTimeout := time.Duration(a.v.GetInt(keyJoinTimeout)) * time.Second
	if err := group.Start(a.v.GetStringSlice(keySeeds), joinTimeout); err != nil {
		_ = group.Stop()
		return nil, fmt.Errorf("failed to join renderer group: %w", err)
	}
	return group, nil
}

func (a *app) hasSeeds() bool {
	return len(a.v.GetStringSlice(keySeeds)) > 0
}

// leaveGroup waits for pending broadcasts to gossip out, then leaves.
func leaveGroup(group *cluster.Cluster) {
	time.Sleep(gossipFlush)
	_ = group.Stop()
}
