// Command syncd is the device sync agent. It drains the shared action queue
// into the task service, keeps the cached task list fresh and serves a small
// local API for producers and renderers that cannot open the state directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/c.mueller/househelper-sync/internal/api"
	"github.com/c.mueller/househelper-sync/internal/cluster"
	"github.com/c.mueller/househelper-sync/internal/config"
	"github.com/c.mueller/househelper-sync/internal/logging"
	"github.com/c.mueller/househelper-sync/internal/state"
	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/c.mueller/househelper-sync/internal/taskstore"
	"github.com/c.mueller/househelper-sync/internal/worker"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
)

func main() {
	configFlag := flag.String("config", "", "Path to configuration file (YAML)")
	portFlag := flag.String("port", "", "Agent HTTP port (overrides config)")
	stateDirFlag := flag.String("state-dir", "", "Device state directory (overrides config)")
	authorityFlag := flag.String("authority", "", "Task service base URL (overrides config)")
	nodeNameFlag := flag.String("node-name", "", "Node name (overrides config)")
	serfAddrFlag := flag.String("serf-addr", "", "Serf bind address, enables the renderer group (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configFlag != "" {
		log.Printf("Loading configuration from %s", *configFlag)
		loaded, err := config.LoadConfig(*configFlag)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	if *portFlag != "" {
		port, err := strconv.Atoi(*portFlag)
		if err != nil {
			log.Fatalf("Invalid port: %v", err)
		}
		cfg.Agent.Port = port
	}
	if *stateDirFlag != "" {
		cfg.State.Dir = *stateDirFlag
	}
	if *authorityFlag != "" {
		cfg.Sync.Authority = *authorityFlag
	}
	if *nodeNameFlag != "" {
		cfg.Node.Name = *nodeNameFlag
	}
	if *serfAddrFlag != "" {
		cfg.Node.Serf.BindAddr = *serfAddrFlag
		cfg.Cluster.Enabled = true
	}

	logger, logCloser := logging.Setup(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()

	slog.Info("Starting househelper sync agent",
		"log_level", cfg.LogLevel,
		"state_dir", cfg.State.Dir,
		"authority", cfg.Sync.Authority,
	)

	st, err := state.Open(cfg.State.Dir)
	if err != nil {
		log.Fatalf("Failed to open device state: %v", err)
	}
	defer st.Close()

	notifiers := syncer.Notifiers{syncer.LogNotifier{Logger: logger}}

	var clusterInstance *cluster.Cluster
	var apiCluster api.Cluster
	if cfg.Cluster.Enabled {
		log.Printf("Initializing renderer group (node: %s, serf: %s)", cfg.Node.Name, cfg.Node.Serf.BindAddr)
		clusterInstance, err = cluster.New(cluster.Options{
			NodeName:      cfg.Node.Name,
			BindAddr:      cfg.Node.Serf.BindAddr,
			AdvertiseAddr: cfg.Node.Serf.AdvertiseAddr,
			EncryptKey:    cfg.Cluster.EncryptKey,
		})
		if err != nil {
			log.Fatalf("Failed to initialize cluster: %v", err)
		}
		defer clusterInstance.Stop()
		apiCluster = clusterInstance
		notifiers = append(notifiers, clusterInstance)
	}

	store := taskstore.NewClient(cfg.Sync.Authority, cfg.Sync.ApplyTimeout)
	synchronizer := st.NewSynchronizer(store, notifiers, syncer.Options{
		Freshness:    cfg.Sync.Freshness,
		ApplyTimeout: cfg.Sync.ApplyTimeout,
		Logger:       logger,
	})

	syncWorker := worker.New(synchronizer, worker.Config{
		Interval:    cfg.Sync.Interval,
		SignalPath:  st.Queue.SignalPath(),
		Debounce:    cfg.Sync.Debounce,
		SyncOnStart: true,
	})

	if clusterInstance != nil {
		clusterInstance.OnSyncRequest(func(ev cluster.SyncRequestEvent) {
			log.Printf("[INFO] Sync requested by %s: %s", ev.NodeID, ev.Reason)
			syncWorker.TriggerNow()
		})
		clusterInstance.SetStatusProvider(func() cluster.StatusResponse {
			snap := st.Projection.Read(context.Background())
			resp := cluster.StatusResponse{TaskCount: len(snap.Tasks)}
			if snap.LastSyncedAt != nil {
				resp.LastSyncedAt = snap.LastSyncedAt.UnixMilli()
			}
			return resp
		})

		joinTimeout := time.Duration(cfg.Cluster.JoinTimeout) * time.Second
		if err := clusterInstance.Start(cfg.Cluster.Seeds, joinTimeout); err != nil {
			log.Fatalf("Failed to start cluster: %v", err)
		}
	}

	if err := syncWorker.Start(); err != nil {
		log.Fatalf("Failed to start sync worker: %v", err)
	}
	defer syncWorker.Stop()

	router := chi.NewMux()
	humaAPI := humachi.New(router, huma.DefaultConfig("Househelper Sync Agent", "1.0.0"))

	agent := api.NewAgentServer(st.Queue, st.Projection, synchronizer, syncWorker, apiCluster)
	agent.RegisterRoutes(humaAPI)

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Agent.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Sync.ApplyTimeout*4 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting agent API on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down sync agent...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Agent API forced to shutdown: %v", err)
	}

	syncWorker.Stop()

	if clusterInstance != nil {
		if err := clusterInstance.Stop(); err != nil {
			log.Printf("Error stopping cluster: %v", err)
		}
	}

	log.Println("Sync agent exited")
}
