// c4bridge - Control4 to MQTT bridge
//
// c4bridge connects to a Control4 Director on the LAN, exposes its
// devices as typed entities (lights, thermostats, locks, sensors,
// alarm panels), and bridges them onto an MQTT bus: Director variable
// events flow out as retained state messages, bus commands flow back
// in as Director commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/c4bridge/migrations"

	"github.com/nerrad567/c4bridge/internal/api"
	"github.com/nerrad567/c4bridge/internal/bridge"
	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/entity"
	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
	"github.com/nerrad567/c4bridge/internal/infrastructure/database"
	"github.com/nerrad567/c4bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/c4bridge/internal/infrastructure/logging"
	"github.com/nerrad567/c4bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/c4bridge/internal/registry"
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

var configFlag = flag.String("config", "", "path to config file (overrides C4BRIDGE_CONFIG)")

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting c4bridge",
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

	// Open database
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store := registry.NewStore(db)

	// Connect to MQTT broker
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
	mqttClient.SetLogger(log)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, variable history off")
	}

	// Director access: account mints bearer tokens, the token manager
	// caches and refreshes them, the HTTPS client and event feed use them.
	account := director.NewAccount(cfg.Account)
	tokens := director.NewTokenManager(account, store, time.Duration(cfg.Account.RefreshMargin)*time.Second)
	tokens.SetLogger(log)
	if tokens.LoadPersisted(ctx) {
		log.Info("reusing persisted director token", "expires_at", tokens.ExpiresAt())
	}

	client := director.NewClient(cfg.Director, tokens)
	client.SetLogger(log)

	events := director.NewEventClient(cfg.Director, tokens)
	events.SetLogger(log)
	defer func() {
		log.Info("closing director event feed")
		if closeErr := events.Close(); closeErr != nil {
			log.Error("error closing event feed", "error", closeErr)
		}
	}()

	// Discover entities from the Director's item tree
	armModes := entity.ArmModes{
		Away:         cfg.Alarm.AwayMode,
		Home:         cfg.Alarm.HomeMode,
		Night:        cfg.Alarm.NightMode,
		CustomBypass: cfg.Alarm.CustomBypassMode,
		Vacation:     cfg.Alarm.VacationMode,
	}
	loader := entity.NewLoader(client, armModes, cfg.Director.LightTransitionTime)
	loader.SetLogger(log)

	entities, snapshot, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	persistSnapshot(ctx, store, snapshot, log)

	// Bridge entities onto the MQTT bus
	bridgeCfg := bridge.Config{
		BridgeID:  cfg.Bridge.ID,
		Publisher: mqttClient,
		Events:    events,
		QoS:       byte(cfg.MQTT.QoS),
	}
	if influxClient != nil {
		bridgeCfg.Recorder = influxClient
	}
	br := bridge.New(bridgeCfg, entities)
	br.SetLogger(log)

	health := bridge.NewHealthReporter(bridge.HealthConfig{
		BridgeID:  cfg.Bridge.ID,
		Version:   version,
		Interval:  time.Duration(cfg.Bridge.HealthInterval) * time.Second,
		Publisher: mqttClient,
		Events:    events,
		Metrics:   br.GetMetrics,
	})
	health.SetLogger(log)
	health.SetEntityCount(entities.Len())
	health.PublishStarting()

	// reload re-runs discovery and swaps the registry in place. Shared by
	// the bus refresh request, the HTTP refresh endpoint, and the
	// periodic rescan.
	reload := func(ctx context.Context) error {
		fresh, snapshot, err := loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("reloading entities: %w", err)
		}
		persistSnapshot(ctx, store, snapshot, log)
		br.SetRegistry(fresh)
		health.SetEntityCount(fresh.Len())
		return nil
	}
	br.SetReloadFunc(reload)

	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer log.Info("bridge stopped")

	// Dial the event feed after the bridge has registered its callbacks
	if err := events.Start(ctx); err != nil {
		return fmt.Errorf("starting event feed: %w", err)
	}
	log.Info("director event feed started", "host", cfg.Director.Host)

	health.Start(ctx)
	defer health.Stop()

	if cfg.Director.ScanInterval > 0 {
		go rescanLoop(ctx, time.Duration(cfg.Director.ScanInterval)*time.Second, reload, log)
	}

	// HTTP status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Bridge:   br,
			Director: client,
			Events:   events,
			Tokens:   tokens,
			MQTT:     mqttClient,
			Influx:   influxConn(influxClient),
			Items:    store,
			DB:       db,
			Reload:   reload,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, client); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"entities", entities.Len(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Precedence: -config flag, C4BRIDGE_CONFIG environment variable, default.
func getConfigPath() string {
	if *configFlag != "" {
		return *configFlag
	}
	if path := os.Getenv("C4BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// persistSnapshot saves discovered items per category. Failures are logged
// rather than fatal; the registry in memory is already loaded.
func persistSnapshot(ctx context.Context, store *registry.Store, snapshot map[string][]director.Item, log *logging.Logger) {
	for category, items := range snapshot {
		if err := store.SaveItems(ctx, category, items); err != nil {
			log.Warn("persisting item snapshot", "category", category, "error", err)
		}
	}
}

// rescanLoop periodically re-runs entity discovery so drivers added to the
// project show up without a restart.
func rescanLoop(ctx context.Context, interval time.Duration, reload func(context.Context) error, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reload(ctx); err != nil {
				log.Warn("periodic rescan failed", "error", err)
			}
		}
	}
}

// influxConn avoids handing the API a non-nil interface wrapping a nil
// client.
func influxConn(client *influxdb.Client) api.ConnChecker {
	if client == nil {
		return nil
	}
	return client
}

// healthCheck verifies infrastructure connections after startup.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, client *director.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("director: %w", err)
	}
	return nil
}
