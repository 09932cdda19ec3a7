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
	"github.com/c.mueller/househelper-sync/internal/database"
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
	// Command line flags
	configFlag := flag.String("config", "", "Path to configuration file (YAML)")
	portFlag := flag.String("port", "", "HTTP server port (overrides config)")
	dbPathFlag := flag.String("db", "", "Database file path (overrides config)")
	nodeNameFlag := flag.String("node-name", "", "Node name (overrides config)")
	serfAddrFlag := flag.String("serf-addr", "", "Serf bind address (overrides config)")
	stateDirFlag := flag.String("state-dir", "", "Device state directory (overrides config)")
	embeddedFlag := flag.Bool("embedded-sync", false, "Drain the device state directory in this process")
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

	// Override with command line flags
	if *portFlag != "" {
		port, err := strconv.Atoi(*portFlag)
		if err != nil {
			log.Fatalf("Invalid port: %v", err)
		}
		cfg.Node.HTTP.Port = port
	}
	if *dbPathFlag != "" {
		cfg.Node.Database.Path = *dbPathFlag
	}
	if *nodeNameFlag != "" {
		cfg.Node.Name = *nodeNameFlag
	}
	if *serfAddrFlag != "" {
		cfg.Node.Serf.BindAddr = *serfAddrFlag
		cfg.Cluster.Enabled = true
	}
	if *stateDirFlag != "" {
		cfg.State.Dir = *stateDirFlag
	}
	if *embeddedFlag {
		cfg.Sync.Embedded = true
	}

	logger, logCloser := logging.Setup(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()

	slog.Info("Starting househelper task service", "log_level", cfg.LogLevel, "node", cfg.Node.Name)

	// Initialize database
	log.Printf("Initializing database at %s", cfg.Node.Database.Path)
	db, err := database.New(cfg.Node.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize cluster
	var clusterInstance *cluster.Cluster
	var apiCluster api.Cluster
	if cfg.Cluster.Enabled {
		log.Printf("Initializing cluster (node: %s, serf: %s)", cfg.Node.Name, cfg.Node.Serf.BindAddr)
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
	}

	// Embedded sync: this process is the device's main process and applies
	// queued actions straight to its own database.
	var syncWorker *worker.Worker
	var trigger api.Trigger
	if cfg.Sync.Embedded {
		log.Printf("Opening device state at %s", cfg.State.Dir)
		st, err := state.Open(cfg.State.Dir)
		if err != nil {
			log.Fatalf("Failed to open device state: %v", err)
		}
		defer st.Close()

		var notifier syncer.ChangeNotifier = syncer.LogNotifier{Logger: logger}
		if clusterInstance != nil {
			notifier = clusterInstance
		}

		synchronizer := st.NewSynchronizer(taskstore.NewLocal(db), notifier, syncer.Options{
			Freshness:    cfg.Sync.Freshness,
			ApplyTimeout: cfg.Sync.ApplyTimeout,
			Logger:       logger,
		})

		syncWorker = worker.New(synchronizer, worker.Config{
			Interval:    cfg.Sync.Interval,
			SignalPath:  st.Queue.SignalPath(),
			Debounce:    cfg.Sync.Debounce,
			SyncOnStart: true,
		})
		if clusterInstance != nil {
			clusterInstance.OnSyncRequest(func(cluster.SyncRequestEvent) { syncWorker.TriggerNow() })
		}
		trigger = syncWorker
	}

	// Start cluster
	if clusterInstance != nil {
		joinTimeout := time.Duration(cfg.Cluster.JoinTimeout) * time.Second
		if err := clusterInstance.Start(cfg.Cluster.Seeds, joinTimeout); err != nil {
			log.Fatalf("Failed to start cluster: %v", err)
		}
	}

	if syncWorker != nil {
		if err := syncWorker.Start(); err != nil {
			log.Fatalf("Failed to start sync worker: %v", err)
		}
		defer syncWorker.Stop()
	}

	// Create Chi router
	router := chi.NewMux()

	// Create Huma API
	humaAPI := humachi.New(router, huma.DefaultConfig("Househelper Task API", "1.0.0"))

	apiServer := api.NewServer(db, apiCluster, trigger)
	apiServer.RegisterRoutes(humaAPI)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Node.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Node.HTTP.Port)
		log.Printf("API documentation available at http://localhost:%d/docs", cfg.Node.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if syncWorker != nil {
		syncWorker.Stop()
	}

	if clusterInstance != nil {
		if err := clusterInstance.Stop(); err != nil {
			log.Printf("Error stopping cluster: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
