// Switchyard - realtime switch-state hub
//
// Switchyard keeps one hardware switch controller and any number of
// app clients synchronized over duplex connections, runs the periodic
// automation rules, and persists the durable state document across
// restarts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/switchyard-hub/switchyard/migrations"

	"github.com/switchyard-hub/switchyard/internal/api"
	"github.com/switchyard-hub/switchyard/internal/automation"
	"github.com/switchyard-hub/switchyard/internal/hub"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/config"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/database"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/logging"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/mqtt"
	"github.com/switchyard-hub/switchyard/internal/infrastructure/telemetry"
	"github.com/switchyard-hub/switchyard/internal/mirror"
	"github.com/switchyard-hub/switchyard/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Switchyard",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and migrate
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Restore the durable state document. A missing row is a first
	// start, not an error.
	store := state.NewStore()
	repo := state.NewSQLiteRepository(db.DB)
	loaded, err := repo.Load(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
		log.Info("no stored state document, starting fresh")
	case err != nil:
		return fmt.Errorf("loading state document: %w", err)
	default:
		store.RestoreDurable(loaded)
		log.Info("state document restored")
	}

	// Connection hub and message router
	connHub := hub.NewHub(cfg.Hub, log.With("component", "hub"))
	router := hub.NewRouter(store, connHub, cfg.Hub.Interlocked, log.With("component", "router"))
	router.SetRepository(repo)
	go connHub.Run(ctx)
	log.Info("connection hub started",
		"probe_interval", cfg.Hub.ProbeInterval,
		"interlocked", cfg.Hub.Interlocked,
	)

	// MQTT state mirror (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// #nosec G115 -- QoS validated to 0..2 by config
		stateMirror := mirror.New(mqttClient, router, byte(cfg.MQTT.QoS), log.With("component", "mirror"))
		if startErr := stateMirror.Start(); startErr != nil {
			return fmt.Errorf("starting state mirror: %w", startErr)
		}
		router.SetPublisher(stateMirror)
		log.Info("state mirror started")
	} else {
		log.Info("MQTT disabled")
	}

	// Telemetry (optional)
	if cfg.InfluxDB.Enabled {
		tel, telErr := telemetry.Connect(cfg.InfluxDB)
		if telErr != nil {
			return fmt.Errorf("connecting to telemetry: %w", telErr)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := tel.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		tel.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		router.SetTelemetry(tel)
		log.Info("telemetry connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Automation engine
	engine := automation.NewEngine(store, router, cfg.Automation, log.With("component", "automation"))
	engine.SetRepository(repo)
	go engine.Run(ctx)
	log.Info("automation engine started",
		"tick_interval", cfg.Automation.TickInterval,
		"night_window", fmt.Sprintf("%s-%s", cfg.Automation.NightStart, cfg.Automation.NightEnd),
	)

	// HTTP server with the WebSocket endpoint
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.With("component", "api"),
		Hub:     connHub,
		Router:  router,
		Store:   store,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Telemetry (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Switchyard stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SWITCHYARD_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("SWITCHYARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
