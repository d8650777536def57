// Holter Node - WiFi/MQTT heartbeat agent
//
// This is the main entry point for the node agent. It brings the network
// link up, holds a TLS MQTT session with the cloud broker, publishes a
// heartbeat on a fixed interval, relays inbound messages to the log and
// blinks a status LED.
//
// Exit codes:
//   - 0: clean shutdown on SIGINT/SIGTERM
//   - 1: startup or runtime failure
//   - 3: broker unreachable after the retry budget; the supervisor restarts the node
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/holter-node/internal/agent"
	"github.com/nerrad567/holter-node/internal/api"
	"github.com/nerrad567/holter-node/internal/infrastructure/config"
	"github.com/nerrad567/holter-node/internal/infrastructure/database"
	"github.com/nerrad567/holter-node/internal/infrastructure/influxdb"
	"github.com/nerrad567/holter-node/internal/infrastructure/logging"
	"github.com/nerrad567/holter-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/holter-node/internal/journal"
	"github.com/nerrad567/holter-node/internal/led"
	"github.com/nerrad567/holter-node/internal/restart"
	"github.com/nerrad567/holter-node/internal/wifi"
	"github.com/nerrad567/holter-node/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/holter.yaml"

// shutdownTimeout bounds the journal writes made after the run context ends.
const shutdownTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps run's result to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, agent.ErrRestartRequired):
		return restart.ExitCode
	default:
		return 1
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, agent.ErrRestartRequired when the broker
//     retry budget ran out, or an error describing a startup failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default(version)
	logStartup(log)

	cfg, source, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "source", source)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log = log.With("thing_name", cfg.Device.ThingName)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	deps := agent.Deps{Logger: log}

	// Journal (optional)
	var db *database.DB
	var repo *journal.SQLiteRepository
	if cfg.Journal.Enabled {
		db, repo, err = openJournal(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		deps.Recorder = repo
		deps.BootID = repo.BootID()
	} else {
		log.Info("journal disabled")
	}

	// InfluxDB telemetry (optional). A failed connection is not fatal:
	// the heartbeat matters more than its metrics.
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ThingName)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, continuing without telemetry", "error", err)
	default:
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
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		deps.Metrics = influxClient
	}

	// Network link
	link, err := wifi.NewLink(cfg.WiFi)
	if err != nil {
		return fmt.Errorf("creating network link: %w", err)
	}
	deps.Link = link

	// Status LED
	indicator, err := led.New(cfg.LED, log)
	if err != nil {
		log.Warn("status LED unavailable, falling back to log indicator", "backend", cfg.LED.Backend, "error", err)
		indicator = led.NewLogIndicator(log)
	}
	defer func() {
		if closeErr := indicator.Close(); closeErr != nil {
			log.Error("error closing status LED", "error", closeErr)
		}
	}()
	deps.Indicator = indicator

	// Restart policy
	restarter, err := restart.New(cfg.Restart, log)
	if err != nil {
		return fmt.Errorf("creating restart policy: %w", err)
	}
	deps.Restarter = restarter

	// MQTT client. The agent connects it; nothing is dialled here.
	mqttClient, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected",
			"broker", cfg.MQTT.BrokerAddress(),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	deps.Broker = mqttClient

	node, err := agent.New(agent.OptionsFromConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	// Status server (optional)
	var server *api.Server
	if cfg.Status.Enabled {
		server, err = startStatusServer(ctx, cfg, log, node, repo, db)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return node.Run(gctx)
	})
	if server != nil {
		g.Go(func() error {
			<-gctx.Done()
			return server.Close()
		})
	}

	log.Info("initialisation complete")

	runErr := g.Wait()

	if repo != nil {
		endBoot(repo, log, runErr)
	}

	if errors.Is(runErr, agent.ErrRestartRequired) {
		log.Error("restart required", "reason", agent.ReasonBrokerExhausted, "mode", restarter.Mode())
		return runErr
	}
	if runErr != nil {
		return fmt.Errorf("running agent: %w", runErr)
	}

	log.Info("holter node stopped")
	return nil
}

// logStartup announces the build. The logger already carries version.
func logStartup(log *logging.Logger) {
	log.Info("starting holter node",
		"commit", commit,
		"build_date", date,
	)
}

// loadConfig reads HOLTER_CONFIG, or the default path when it exists. With
// neither, the built-in defaults plus environment overrides are used.
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("HOLTER_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		cfg, err := config.Load(defaultConfigPath)
		return cfg, defaultConfigPath, err
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, "defaults", fmt.Errorf("validating config: %w", err)
	}
	return cfg, "defaults", nil
}

// openJournal opens and migrates the journal database, then starts a boot.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *journal.SQLiteRepository, error) {
	db, err := database.Open(ctx, cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running journal migrations: %w", err)
	}

	repo := journal.NewSQLiteRepository(db.DB)
	boot, err := repo.StartBoot(ctx, cfg.Device.ThingName, version)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("starting boot record: %w", err)
	}

	if cfg.Journal.KeepBoots > 0 {
		pruned, err := repo.PruneBoots(ctx, cfg.Journal.KeepBoots)
		if err != nil {
			log.Warn("pruning journal failed", "error", err)
		} else if pruned > 0 {
			log.Info("pruned old boots", "count", pruned)
		}
	}

	log.Info("journal opened", "path", db.Path(), "boot_id", boot.ID)
	return db, repo, nil
}

// startStatusServer starts the local HTTP status server.
func startStatusServer(ctx context.Context, cfg *config.Config, log *logging.Logger, node *agent.Agent, repo *journal.SQLiteRepository, db *database.DB) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.Status,
		Logger:  log,
		Agent:   node,
		DB:      db,
		Version: version,
	}
	if repo != nil {
		deps.Journal = repo
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating status server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting status server: %w", err)
	}
	return server, nil
}

// endBoot closes the boot record. The run context is already done, so the
// writes get their own deadline.
func endBoot(repo *journal.SQLiteRepository, log *logging.Logger, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	reason := "shutdown"
	switch {
	case errors.Is(runErr, agent.ErrRestartRequired):
		reason = agent.ReasonBrokerExhausted
	case runErr != nil:
		reason = "error"
	}

	if err := repo.RecordEvent(ctx, journal.EventShutdown, reason, 0); err != nil {
		log.Warn("journal write failed", "error", err)
	}
	if err := repo.EndBoot(ctx, reason); err != nil {
		log.Warn("closing boot record failed", "error", err)
	}
}
