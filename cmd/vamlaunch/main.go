// VAMLaunch - device control gateway
//
// This is the main entry point for the VAMLaunch service. It maintains a
// WebSocket connection to an Intiface/Buttplug device server, mirrors the
// device registry and connection state onto MQTT, accepts device commands
// from MQTT, and records an event history in SQLite with optional command
// telemetry in InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/FrostySource/VAMLaunch/migrations"

	mqttbridge "github.com/FrostySource/VAMLaunch/internal/bridges/mqtt"
	"github.com/FrostySource/VAMLaunch/internal/buttplug"
	"github.com/FrostySource/VAMLaunch/internal/history"
	"github.com/FrostySource/VAMLaunch/internal/infrastructure/config"
	"github.com/FrostySource/VAMLaunch/internal/infrastructure/database"
	"github.com/FrostySource/VAMLaunch/internal/infrastructure/influxdb"
	"github.com/FrostySource/VAMLaunch/internal/infrastructure/logging"
	"github.com/FrostySource/VAMLaunch/internal/infrastructure/mqtt"
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

// handshakeTimeout bounds how long a session waits for the server info
// response before tearing the connection down and retrying.
const handshakeTimeout = 10 * time.Second

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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VAMLaunch",
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

	// Open the history database (optional)
	var store *history.Store
	if cfg.History.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening history database: %w", openErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		log.Info("history database connected", "path", cfg.History.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		store = history.NewStore(db)
		if cfg.History.RetentionDays > 0 {
			pruned, pruneErr := store.Prune(ctx, time.Duration(cfg.History.RetentionDays)*24*time.Hour)
			if pruneErr != nil {
				log.Warn("history prune failed", "error", pruneErr)
			} else if pruned > 0 {
				log.Info("history pruned", "events", pruned, "retention_days", cfg.History.RetentionDays)
			}
		}
	} else {
		log.Info("history disabled")
	}

	// Connect to the MQTT broker and start the command bridge (optional)
	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
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

		bridge, err = mqttbridge.New(mqttbridge.Options{
			MQTTClient:  mqttClient,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Logger:      log,
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		log.Info("MQTT bridge started", "prefix", cfg.MQTT.TopicPrefix)
	} else {
		log.Info("MQTT disabled")
	}

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

	// Create the protocol client and wire its callbacks. Callbacks fire on
	// the session goroutine, inside Update.
	client := buttplug.NewClient(cfg.Client.Name)
	client.SetLogger(log.With("component", "buttplug"))
	client.SetPath(cfg.Server.Path)

	client.SetOnStatusChanged(func(status buttplug.Status, detail string) {
		log.Info("server status changed", "status", status.String(), "detail", detail)
		if bridge != nil {
			bridge.PublishStatus(status.String(), detail)
		}
		if store != nil {
			if recErr := store.RecordConnection(ctx, status.String()+": "+detail); recErr != nil {
				log.Warn("recording connection event failed", "error", recErr)
			}
		}
		if influxClient != nil {
			influxClient.WriteConnectionEvent(status.String())
		}
	})

	client.SetOnDevicesChanged(func() {
		devices := client.Devices()
		log.Info("device registry changed", "devices", len(devices))
		if bridge != nil {
			bridge.PublishDevices(devices)
		}
		if store != nil {
			detail := fmt.Sprintf("registry now holds %d device(s)", len(devices))
			if recErr := store.Record(ctx, history.Event{Kind: history.KindDevice, DeviceIndex: -1, Detail: detail}); recErr != nil {
				log.Warn("recording device event failed", "error", recErr)
			}
		}
		if influxClient != nil {
			influxClient.WriteDeviceCount(len(devices))
		}
	})

	client.SetOnError(func(msg string) {
		log.Warn("server error", "error", msg)
		if bridge != nil {
			bridge.PublishError(msg)
		}
		if store != nil {
			if recErr := store.RecordError(ctx, msg); recErr != nil {
				log.Warn("recording error event failed", "error", recErr)
			}
		}
	})

	log.Info("initialisation complete, connecting to device server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"path", cfg.Server.Path,
	)

	err = serveLoop(ctx, cfg, client, bridge, store, influxClient, log)

	log.Info("VAMLaunch stopped")
	return err
}

// getConfigPath returns the configuration file path.
// Uses VAMLAUNCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VAMLAUNCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// serveLoop connects to the device server and runs sessions until the
// context is cancelled, reconnecting with exponential backoff between
// attempts.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Application configuration
//   - client: Protocol client (owned by this goroutine from here on)
//   - bridge: MQTT command bridge (may be nil if disabled)
//   - store: History store (may be nil if disabled)
//   - influxClient: Telemetry client (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - error: nil on shutdown, or the final connect error once the
//     configured attempt limit is exhausted
func serveLoop(ctx context.Context, cfg *config.Config, client *buttplug.Client, bridge *mqttbridge.Bridge, store *history.Store, influxClient *influxdb.Client, log *logging.Logger) error {
	delay := cfg.GetReconnectInitialDelay()
	maxDelay := cfg.GetReconnectMaxDelay()
	attempts := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := client.Connect(cfg.Server.Host, cfg.Server.Port); err != nil {
			attempts++
			if cfg.Client.Reconnect.MaxAttempts > 0 && attempts >= cfg.Client.Reconnect.MaxAttempts {
				return fmt.Errorf("connecting to device server: %w", err)
			}
			log.Warn("device server connect failed",
				"error", err,
				"attempt", attempts,
				"retry_in", delay,
			)
			if !sleepCtx(ctx, delay) {
				return nil
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		attempts = 0
		delay = cfg.GetReconnectInitialDelay()

		runSession(ctx, cfg, client, bridge, store, influxClient, log)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("device server connection lost, reconnecting", "retry_in", delay)
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

// runSession pumps one connected session: it ticks the protocol client,
// applies queued bridge commands and returns when the connection drops or
// the context is cancelled.
func runSession(ctx context.Context, cfg *config.Config, client *buttplug.Client, bridge *mqttbridge.Bridge, store *history.Store, influxClient *influxdb.Client, log *logging.Logger) {
	ticker := time.NewTicker(cfg.GetTickInterval())
	defer ticker.Stop()

	last := time.Now()
	started := last

	for {
		select {
		case <-ctx.Done():
			client.Disconnect()
			return
		case now := <-ticker.C:
			client.Update(now.Sub(last))
			last = now

			if bridge != nil {
				drainCommands(ctx, client, bridge, store, influxClient, log)
			}

			if client.Status() == buttplug.StatusDisconnected {
				return
			}
			if !client.HandshakeComplete() && now.Sub(started) > handshakeTimeout {
				log.Warn("handshake timed out, dropping connection")
				client.Disconnect()
				return
			}
		}
	}
}

// drainCommands empties the bridge command queue, applying each command to
// the protocol client and publishing an acknowledgement.
func drainCommands(ctx context.Context, client *buttplug.Client, bridge *mqttbridge.Bridge, store *history.Store, influxClient *influxdb.Client, log *logging.Logger) {
	for {
		cmd, ok := bridge.NextCommand()
		if !ok {
			return
		}

		if !client.HandshakeComplete() {
			bridge.Ack(cmd, mqttbridge.AckDropped, "device server not connected")
			continue
		}

		status, errMsg := applyCommand(client, cmd)
		bridge.Ack(cmd, status, errMsg)

		if status != mqttbridge.AckAccepted {
			log.Warn("command rejected",
				"command_id", cmd.ID,
				"action", cmd.Action,
				"device_index", cmd.DeviceIndex,
				"error", errMsg,
			)
			continue
		}

		log.Debug("command applied",
			"command_id", cmd.ID,
			"action", cmd.Action,
			"device_index", cmd.DeviceIndex,
		)
		if store != nil {
			detail := fmt.Sprintf("%s (id %s)", cmd.Action, cmd.ID)
			if recErr := store.RecordCommand(ctx, cmd.DeviceIndex, detail); recErr != nil {
				log.Warn("recording command failed", "error", recErr)
			}
		}
		if influxClient != nil {
			influxClient.WriteCommandMetric(cmd.DeviceIndex, cmd.Action, commandValue(cmd))
		}
	}
}

// applyCommand translates one bridge command into protocol client calls.
//
// Returns:
//   - mqttbridge.AckStatus: AckAccepted when the command was sent
//   - string: rejection reason, empty when accepted
func applyCommand(client *buttplug.Client, cmd mqttbridge.Command) (mqttbridge.AckStatus, string) {
	switch cmd.Action {
	case mqttbridge.ActionScanStart:
		client.StartScanning()
		return mqttbridge.AckAccepted, ""
	case mqttbridge.ActionScanStop:
		client.StopScanning()
		return mqttbridge.AckAccepted, ""
	case mqttbridge.ActionStopAll:
		client.StopAllDevices()
		return mqttbridge.AckAccepted, ""
	}

	device, ok := client.Device(cmd.DeviceIndex)
	if !ok {
		return mqttbridge.AckRejected, fmt.Sprintf("unknown device index %d", cmd.DeviceIndex)
	}

	switch cmd.Action {
	case mqttbridge.ActionLinear:
		if !device.SupportsLinearCmd() {
			return mqttbridge.AckRejected, "device has no linear feature"
		}
		client.MoveLinear(device.Index, device.Linear[0].Index, cmd.DurationMs, cmd.Position)
		return mqttbridge.AckAccepted, ""

	case mqttbridge.ActionScalar:
		features := device.Scalar
		if cmd.Actuator != "" {
			features = filterActuator(features, cmd.Actuator)
		}
		if len(features) == 0 {
			return mqttbridge.AckRejected, "device has no matching scalar feature"
		}
		client.ScalarAll(device.Index, features, cmd.Value)
		return mqttbridge.AckAccepted, ""

	case mqttbridge.ActionRotate:
		// Some devices expose rotation only as a scalar actuator; fall
		// back to that family when there is no native rotate command.
		switch {
		case device.SupportsRotateCmd():
			client.RotateAll(device.Index, device.Rotate, cmd.Speed, cmd.Clockwise)
			return mqttbridge.AckAccepted, ""
		case device.HasRotateViaScalar():
			client.ScalarAll(device.Index, device.RotateScalarFeatures(), cmd.Speed)
			return mqttbridge.AckAccepted, ""
		default:
			return mqttbridge.AckRejected, "device cannot rotate"
		}

	case mqttbridge.ActionStop:
		client.StopDevice(device.Index)
		return mqttbridge.AckAccepted, ""
	}

	return mqttbridge.AckRejected, fmt.Sprintf("unsupported action %q", cmd.Action)
}

// filterActuator returns the features whose actuator tag matches,
// compared case-insensitively.
func filterActuator(features []buttplug.Feature, actuator string) []buttplug.Feature {
	var matched []buttplug.Feature
	for _, f := range features {
		if f.IsActuator(actuator) {
			matched = append(matched, f)
		}
	}
	return matched
}

// commandValue picks the telemetry value for a command: position for
// linear, value for scalar, speed for rotate, zero otherwise.
func commandValue(cmd mqttbridge.Command) float64 {
	switch cmd.Action {
	case mqttbridge.ActionLinear:
		return cmd.Position
	case mqttbridge.ActionScalar:
		return cmd.Value
	case mqttbridge.ActionRotate:
		return cmd.Speed
	}
	return 0
}

// sleepCtx sleeps for d or until the context is cancelled.
// Returns false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
