// Edgelink Core - Device Communication Runtime
//
// This is the main entry point for the Edgelink Core application.
// Edgelink keeps an edge node reliably connected to its parent
// aggregator (and optional downstream peer) with:
//   - At-least-once delivery of domain events across disconnects
//   - Durable event persistence surviving crashes and restarts
//   - A single-threaded core loop owning all correctness state
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/oakfield-systems/edgelink-core/migrations"

	"github.com/oakfield-systems/edgelink-core/internal/api"
	"github.com/oakfield-systems/edgelink-core/internal/audit"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/config"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/database"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/influxdb"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/logging"
	"github.com/oakfield-systems/edgelink-core/internal/infrastructure/mqtt"
	"github.com/oakfield-systems/edgelink-core/internal/link"
	"github.com/oakfield-systems/edgelink-core/internal/message"
	"github.com/oakfield-systems/edgelink-core/internal/persister"
	"github.com/oakfield-systems/edgelink-core/internal/proactor"
	"github.com/oakfield-systems/edgelink-core/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// metricsInterval is how often link and core-loop counters are sampled
// into InfluxDB when the sink is enabled.
const metricsInterval = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Edgelink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "node", cfg.Node.Name)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (audit trail + migration ledger, not the delivery path)
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Audit trail: async recorder so the core loop never blocks on SQLite
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log)
	defer func() {
		recorder.Stop()
		if dropped := recorder.Dropped(); dropped > 0 {
			log.Warn("audit events dropped during run", "count", dropped)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// systemd integration (no-op unless EDGELINK_MANAGED_SERVICE=1)
	notifier := process.NewNotifier(log)
	if notifier.Enabled() {
		log.Info("running as managed service, systemd notifications enabled")
		defer notifier.Stopping()
	}

	// Feed the service-manager watchdog only when configured to; the
	// internal watchdog always runs.
	var externalPat func()
	if cfg.Proactor.Watchdog.PatExternal && notifier.Enabled() {
		externalPat = notifier.WatchdogPat
	}

	// Durable event store. Reindex walks every persisted event file, so
	// it pats the watchdog chain itself on large backlogs.
	store, err := persister.New(cfg.Persister.BaseDir, cfg.Persister.MaxBytes)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	if externalPat != nil {
		store.SetReindexPat(externalPat)
	}
	if problems := store.Reindex(); problems != nil {
		for _, warn := range problems.Warnings() {
			log.Warn("event store reindex", "warning", warn)
		}
		if problems.HasErrors() {
			return fmt.Errorf("reindexing event store: %w", problems.ErrorOrNil())
		}
	}
	log.Info("event store reindexed",
		"base_dir", store.BaseDir(),
		"pending", store.NumPending(),
		"bytes", store.CurrBytes(),
	)

	// Core loop
	core := proactor.New(proactor.Options{
		NodeName:               cfg.Node.Name,
		QueueSize:              cfg.Proactor.QueueSize,
		WatchdogCheckInterval:  cfg.WatchdogCheckInterval(),
		WatchdogDefaultTimeout: cfg.WatchdogDefaultTimeout(),
		ExternalPat:            externalPat,
		Logger:                 log,
	})

	// Diagnostics API (optional). Created before the links so its
	// websocket hub can receive the event feed.
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.API.WebSocket,
			Logger:   log,
			NodeName: cfg.Node.Name,
			Version:  version,
			Core:     core,
			Audit:    auditRepo,
			DB:       db,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	}

	// Link layer: persister, ack manager, state machines, reupload
	// trackers. Generated events fan out to the audit recorder and the
	// websocket feed; neither can block the loop.
	links := link.NewLinks(link.Options{
		NodeName:       cfg.Node.Name,
		AckTimeout:     cfg.AckTimeout(),
		ReuploadWindow: cfg.Proactor.NumInitialEventReuploads,
		Store:          store,
		Timers:         core.Timers(),
		Logger:         log,
		OnEvent: func(ev message.Event) {
			recorder.Record(ev)
			if apiServer != nil {
				apiServer.Hub().BroadcastEvent(ev)
			}
		},
	})

	// MQTT client pool: one client per configured link, each feeding
	// the core queue and patting the watchdog from its own goroutine.
	pool, err := mqtt.NewPool(cfg.Node.Name, cfg.Links, core, log)
	if err != nil {
		return fmt.Errorf("creating MQTT clients: %w", err)
	}
	for _, lc := range cfg.Links {
		client, getErr := pool.Get(lc.Name)
		if getErr != nil {
			return fmt.Errorf("wiring link %q: %w", lc.Name, getErr)
		}
		if _, regErr := links.Register(lc.Name, lc.PeerName, lc.Upstream, lc.Downstream, client); regErr != nil {
			return fmt.Errorf("registering link %q: %w", lc.Name, regErr)
		}
		core.Watchdog().Register(client.WatchdogActor(), 0)
		log.Info("link registered",
			"link", lc.Name,
			"peer", lc.PeerName,
			"upstream", lc.Upstream,
			"downstream", lc.Downstream,
		)
	}
	core.BindLinks(links)

	// Record process start as a durable event so the parent learns of
	// the restart. Still pre-Run: nothing else touches link state yet.
	startupEvent := message.NewEvent(message.KindStartup, cfg.Node.Name, map[string]any{
		"version":        version,
		"pending_events": store.NumPending(),
	})
	if genErr := links.GenerateEvent(startupEvent); genErr != nil {
		return fmt.Errorf("persisting startup event: %w", genErr)
	}

	if apiServer != nil {
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("closing API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server listening",
			"host", cfg.API.Host,
			"port", cfg.API.Port,
		)
	}

	// Start MQTT clients; connection progress arrives on the core queue
	if startErr := links.Start(); startErr != nil {
		return fmt.Errorf("starting links: %w", startErr)
	}

	// Translate OS signals into an orderly core-loop shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		core.Shutdown("signal received")
	}()

	// Periodic metrics sampling (optional)
	if influxClient != nil {
		go metricsLoop(ctx, core, influxClient, cfg.Node.Name, log)
	}

	notifier.Ready()
	log.Info("initialisation complete, core loop running")

	// Run owns the calling goroutine until shutdown. Links are stopped
	// by the loop's own teardown; deferred Close calls then unwind the
	// infrastructure in reverse order.
	if runErr := core.Run(); runErr != nil {
		return fmt.Errorf("core loop: %w", runErr)
	}

	log.Info("Edgelink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses EDGELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("EDGELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// metricsLoop samples link, store, and core-loop counters into InfluxDB
// until the context is cancelled. Samples go through the proactor's
// off-loop snapshot reads, so this goroutine never touches link or
// store state directly.
func metricsLoop(ctx context.Context, core *proactor.Proactor, influx *influxdb.Client, node string, log *logging.Logger) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snaps, err := core.LinkSnapshots()
		if err != nil {
			log.Debug("metrics sample skipped", "error", err)
			continue
		}
		for _, snap := range snaps {
			influx.WriteLinkMetrics(node, snap.Name, string(snap.State), snap.ActiveForSend,
				snap.Timeouts, snap.AcksReceived, snap.ReuploadsStarted, snap.EventsReuploaded)
		}

		if storeSnap, snapErr := core.StoreSnapshot(); snapErr == nil {
			influx.WriteStoreMetrics(node, storeSnap.PendingEvents, storeSnap.CurrBytes, storeSnap.MaxBytes)
		}

		stats, err := core.StatsSnapshot()
		if err != nil {
			continue
		}
		processed := 0
		for _, n := range stats.EventsProcessed {
			processed += n
		}
		influx.WriteCoreMetrics(node, processed, stats.QueueDepth, stats.QueueHighWater)
	}
}
