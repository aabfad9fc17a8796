// equipctl is the equipment reservation and remote-control backend.
//
// It serves the REST and WebSocket API, records device reports arriving
// over MQTT and, when enabled, simulates devices answering commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/equipctl/migrations"

	"github.com/nerrad567/equipctl/internal/api"
	"github.com/nerrad567/equipctl/internal/auth"
	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/infrastructure/config"
	"github.com/nerrad567/equipctl/internal/infrastructure/database"
	"github.com/nerrad567/equipctl/internal/infrastructure/influxdb"
	"github.com/nerrad567/equipctl/internal/infrastructure/logging"
	"github.com/nerrad567/equipctl/internal/infrastructure/metrics"
	"github.com/nerrad567/equipctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/equipctl/internal/ingest"
	"github.com/nerrad567/equipctl/internal/registry"
	"github.com/nerrad567/equipctl/internal/reservation"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// ingestStopTimeout bounds draining queued device messages and
	// in-flight simulations on shutdown.
	ingestStopTimeout = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting equipctl",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	reg := registry.New(db.DB)
	reg.SetLogger(log)
	if seedErr := reg.Seed(ctx); seedErr != nil {
		return fmt.Errorf("seeding vocabulary: %w", seedErr)
	}
	log.Info("vocabulary loaded",
		"equipment_statuses", len(reg.EquipmentStatuses()),
		"reservation_statuses", len(reg.ReservationStatuses()),
		"command_types", len(reg.CommandTypes()),
	)

	metrics.Init(db.DB, log)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	publisher := mqtt.NewRetryPublisher(mqttClient, mqttClient.QoS(), cfg.MQTT.PublishRetry)
	publisher.SetLogger(log)

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

	directory := equipment.NewDirectory(equipment.NewSQLiteRepository(db.DB), reg)
	directory.SetLogger(log)

	ledger := reservation.NewLedger(reservation.NewSQLiteRepository(db.DB), reg)
	ledger.SetLogger(log)

	dispatcher := command.NewDispatcher(command.NewSQLiteRepository(db.DB), reg, publisher)
	dispatcher.SetLogger(log)
	if influxClient != nil {
		dispatcher.SetExporter(influxClient)
	}

	authService := auth.NewService(auth.NewUserRepository(db.DB), cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
	authService.SetLogger(log)

	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		health["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Registry:   reg,
		Equipment:  directory,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Auth:       authService,
		Health:     health,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// A nil *influxdb.Client must not become a non-nil interface.
	var series transitionWriter
	if influxClient != nil {
		series = influxClient
	}
	directory.SetObserver(newStatusFanout(server.Hub(), series))
	dispatcher.SetNotifier(server.Hub())

	ingestor := ingest.New(mqttClient, mqttClient.QoS(), directory, ingest.Options{
		QueueSize:   cfg.Ingest.QueueSize,
		IdleTimeout: cfg.Ingest.IdleDuration(),
	})
	ingestor.SetLogger(log)
	if cfg.Simulator.Enabled {
		sim := ingest.NewSimulator(publisher, reg, cfg.Simulator.Tick())
		sim.SetLogger(log)
		ingestor.SetSimulator(sim)
		log.Info("device simulator enabled", "tick", cfg.Simulator.Tick())
	} else {
		log.Info("device simulator disabled")
	}
	if startErr := ingestor.Start(); startErr != nil {
		return fmt.Errorf("starting ingest: %w", startErr)
	}
	defer func() {
		log.Info("stopping ingest")
		stopCtx, cancel := context.WithTimeout(context.Background(), ingestStopTimeout)
		defer cancel()
		if stopErr := ingestor.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping ingest", "error", stopErr)
		}
	}()

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API server, ingest, InfluxDB, MQTT,
	// database.
	return nil
}

// getConfigPath returns EQUIPCTL_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("EQUIPCTL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every infrastructure connection. influxClient may
// be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	var errs []error
	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mqtt: %w", err))
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}
