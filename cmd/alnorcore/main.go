// Alnor Core - Ventilation Integration Service
//
// This is the main entry point for the Alnor Core service. It polls
// Alnor ventilation units over their local Modbus-TCP interface with a
// cloud fallback, exposes device state and commands over MQTT, and runs
// automatic humidity control against configured sensor groups.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/alnorlabs/alnor-core/migrations"

	"github.com/alnorlabs/alnor-core/internal/bridge"
	"github.com/alnorlabs/alnor-core/internal/coordinator"
	"github.com/alnorlabs/alnor-core/internal/device"
	"github.com/alnorlabs/alnor-core/internal/humidity"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/config"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/database"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/influxdb"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/logging"
	"github.com/alnorlabs/alnor-core/internal/infrastructure/mqtt"
	"github.com/alnorlabs/alnor-core/internal/transport"
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

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Alnor Core",
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
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo)
	deviceRegistry.SetLogger(log)

	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.Count())

	// Set up transports. The cloud client doubles as the discovery source.
	cloudClient := transport.NewCloudClient(cfg.Cloud)
	cloudClient.SetLogger(log)
	if loginErr := cloudClient.Login(ctx); loginErr != nil {
		// A dead cloud at boot is survivable when devices have local
		// addresses; the client re-authenticates on demand.
		log.Warn("cloud login failed, continuing with local transport", "error", loginErr)
	}

	modbusClient := transport.NewModbusClient(cfg.Modbus)
	modbusClient.SetLogger(log)

	// Set up the polling coordinator
	coord := coordinator.New(deviceRegistry, modbusClient, cloudClient, cfg.Polling)
	coord.SetLogger(log)
	coord.SetLocalIPOverrides(cfg.Devices.LocalIPs)

	if syncErr := coord.SyncCatalog(ctx, cloudClient); syncErr != nil {
		// The registry still holds devices from previous runs.
		log.Warn("cloud catalog sync failed, using persisted devices", "error", syncErr)
	}
	log.Info("device catalog ready", "devices", deviceRegistry.Count())

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

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

		coord.SetHistory(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Set up the MQTT bridge. Starting it is deferred until humidity
	// control is wired so the humidity command subscription is included.
	mqttBridge := bridge.New(mqttClient, coord, byte(cfg.MQTT.QoS))
	mqttBridge.SetLogger(log)
	coord.AddListener(mqttBridge.OnSnapshot)

	// Set up humidity control. Observations older than two local poll
	// intervals are considered stale, so one missed poll does not stop
	// control but a dead sensor does.
	if len(cfg.Humidity.Controls) > 0 {
		staleAfter := 2 * cfg.GetLocalInterval()
		stateStore := humidity.NewSQLiteStateStore(db.DB)

		manager := humidity.NewManager(cfg.Humidity.Controls, coord, stateStore, staleAfter)
		manager.SetLogger(log)

		// Decisions always go to the retained MQTT topic, and to
		// InfluxDB when history is enabled.
		recorders := multiRecorder{mqttBridge}
		if influxClient != nil {
			recorders = append(recorders, influxClient)
		}
		manager.SetRecorder(recorders)

		if restoreErr := manager.Restore(ctx); restoreErr != nil {
			return fmt.Errorf("restoring humidity control state: %w", restoreErr)
		}

		mqttBridge.SetHumidityControl(manager)

		coord.AddListener(func(dev device.Device, snap coordinator.Snapshot) {
			at := snap.UpdatedAt
			var rh *float64
			if snap.Reading != nil {
				rh = snap.Reading.Humidity
				at = snap.Reading.Timestamp
				manager.ObserveMode(dev.ID, snap.Reading.Mode)
			}
			manager.Observe(ctx, dev.ID, rh, snap.Available, at)
		})

		log.Info("humidity control enabled", "controllers", len(cfg.Humidity.Controls))
	} else {
		log.Info("humidity control disabled, no controllers configured")
	}

	if startErr := mqttBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting MQTT bridge: %w", startErr)
	}

	// Verify all infrastructure before announcing availability
	healthCtx, healthCancel := context.WithTimeout(ctx, 10*time.Second)
	healthErr := healthCheck(healthCtx, db, mqttClient, influxClient)
	healthCancel()
	if healthErr != nil {
		return fmt.Errorf("startup health check: %w", healthErr)
	}

	// Announce service availability (retained, cleared by the LWT)
	topics := mqtt.Topics{}
	if pubErr := mqttClient.Publish(topics.SystemStatus(), []byte("online"), byte(cfg.MQTT.QoS), true); pubErr != nil {
		log.Warn("publishing service status", "error", pubErr)
	}

	log.Info("Alnor Core started",
		"local_interval", cfg.GetLocalInterval(),
		"cloud_interval", cfg.GetCloudInterval(),
	)

	// Run the polling loop until the context is cancelled
	if runErr := coord.Run(ctx); runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("coordinator stopped: %w", runErr)
	}

	log.Info("shutting down")

	// Best effort offline announcement; the LWT covers unclean exits.
	offlineErr := mqttClient.Publish(topics.SystemStatus(), []byte("offline"), byte(cfg.MQTT.QoS), true)
	if offlineErr != nil {
		log.Warn("publishing offline status", "error", offlineErr)
	}

	// Give in-flight MQTT publishes a moment to drain
	time.Sleep(100 * time.Millisecond)

	return nil
}

// multiRecorder fans humidity control decisions out to several recorders.
type multiRecorder []humidity.Recorder

func (m multiRecorder) WriteHumidityDecision(deviceID, mode string, observed float64) {
	for _, r := range m {
		r.WriteHumidityDecision(deviceID, mode, observed)
	}
}

// getConfigPath returns the configuration file path from the ALNOR_CONFIG
// environment variable, falling back to the default path.
func getConfigPath() string {
	if path := os.Getenv("ALNOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if !mqttClient.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
