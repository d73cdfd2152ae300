// Package main is the entry point for the AVX controller.
//
// The controller owns the local devices named in its controller document,
// delegates lookups to slave controllers, and broadcasts power dialogs and
// output mappings to registered clients.
//
// Usage:
//
//	avxcontroller [--debug] [--config controller.json] [--app-config configs/config.yaml]
//
// Environment variables (a .env file in the working directory is loaded first):
//
//	AVX_CONFIG - Path to the application config (default: configs/config.yaml)
//	AVX_*      - Overrides for individual settings, see internal/infrastructure/config
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nerrad567/avx-core/internal/api"
	"github.com/nerrad567/avx-core/internal/audit"
	"github.com/nerrad567/avx-core/internal/controller"
	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/infrastructure/config"
	"github.com/nerrad567/avx-core/internal/infrastructure/database"
	"github.com/nerrad567/avx-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/avx-core/internal/infrastructure/logging"
	"github.com/nerrad567/avx-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/avx-core/internal/lifecycle"
	"github.com/nerrad567/avx-core/internal/logring"
	"github.com/nerrad567/avx-core/internal/naming"
	"github.com/nerrad567/avx-core/internal/remote"
	"github.com/nerrad567/avx-core/migrations"
)

// Build information, set via ldflags. version must stay a semantic version:
// masters compare it against their own before accepting a slave.
var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds the whole shutdown hook chain.
	shutdownTimeout = 15 * time.Second
)

// options holds the command-line flags.
type options struct {
	debug     bool
	document  string
	appConfig string
}

func main() {
	//nolint:errcheck // .env is optional
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the avxcontroller command.
func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "avxcontroller",
		Short: "Run an AVX controller",
		Long: `Run an AVX controller.

The controller loads its devices and slaves from the controller document,
registers its name with the naming service and serves the HTTP and
WebSocket API until it receives SIGINT or SIGTERM.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.debug, "debug", false, "Log at debug level")
	flags.StringVar(&opts.document, "config", "", "Controller document (overrides controller.config_file)")
	flags.StringVar(&opts.appConfig, "app-config", "", "Application config (default $AVX_CONFIG or "+defaultConfigPath+")")

	return cmd
}

// run starts the controller and blocks until ctx is cancelled.
//
// Resources opened here are closed by defers in reverse order; shutdown
// work registered by the controller and the API server runs first, through
// the lifecycle hooks.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting AVX controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfgPath := getConfigPath(opts.appConfig)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	ring := logring.New(cfg.Controller.LogCapacity)
	log = logging.New(cfg.Logging, version, logging.WithRing(ring))
	log.Info("configuration loaded", "path", cfgPath, "base_url", cfg.BaseURL())

	hooks := lifecycle.New()
	hooks.SetLogger(log)

	// Audit entries and metric points name the controller as it is now,
	// which changes once the controller document sets an ID.
	var ctrl *controller.Controller
	controllerName := func() string {
		if ctrl == nil {
			return naming.ControllerName(cfg.Controller.ControllerID)
		}
		return ctrl.Name()
	}

	// Audit trail (if the database is enabled)
	var (
		db        *database.DB
		auditRepo audit.Repository
		recorder  *audit.Recorder
	)
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		auditRepo = audit.NewSQLiteRepository(db.DB)
		recorder = audit.NewRecorder(auditRepo, controllerName)
		recorder.SetLogger(log)
	} else {
		log.Info("database disabled, audit trail off")
	}

	// MQTT (bridged devices, naming backend, state relay, controller events)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("closing MQTT connection")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var (
		influxClient *influxdb.Client
		metrics      controller.Metrics
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, influxdb.WithTagFunc("controller", controllerName))
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
		metrics = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Interfaces stay nil, not typed-nil, when MQTT is off.
	var (
		retained  naming.RetainedClient
		publisher device.Publisher
		stateSub  api.StateSubscriber
	)
	if mqttClient != nil {
		retained, publisher, stateSub = mqttClient, mqttClient, mqttClient
	}

	names, err := naming.New(cfg.Naming, retained)
	if err != nil {
		return fmt.Errorf("creating naming service: %w", err)
	}
	log.Info("naming service ready", "backend", cfg.Naming.Backend)

	factory := device.NewFactory()
	factory.Register(device.TypeVirtual, device.NewVirtual)
	factory.Register(device.TypeBridged, device.NewBridgedConstructor(publisher))

	hub := api.NewHub(cfg.WebSocket, log)
	httpClient := &http.Client{}
	httpDialer := remote.HTTPClientDialer{HTTP: httpClient}

	ctrl, err = controller.New(controller.Deps{
		Version: version,
		BaseURL: cfg.BaseURL(),
		Factory: factory,
		Naming:  names,
		Ring:    ring,
		ClientDialer: remote.SchemeDialer{
			"http":       httpDialer,
			"https":      httpDialer,
			api.WSScheme: hub,
		},
		HTTP:          httpClient,
		Shutdown:      hooks,
		SlaveTimeout:  cfg.GetSlaveTimeout(),
		ClientTimeout: cfg.GetClientTimeout(),
		Parallelism:   cfg.Controller.BroadcastParallelism,
		Logger:        log,
		Metrics:       metrics,
		Auditor:       newEventAuditor(recorder, publisher, log),
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	if cfg.Controller.ControllerID != "" {
		ctrl.SetControllerID(cfg.Controller.ControllerID)
	}

	if doc := documentPath(opts.document, cfg); doc != "" {
		if err := ctrl.LoadConfig(ctx, doc); err != nil {
			if !errors.Is(err, controller.ErrConfig) {
				runHooks(hooks, log)
				return fmt.Errorf("loading controller document: %w", err)
			}
			// Already logged with detail; start with whatever loaded.
			log.Warn("controller document not fully loaded, continuing",
				"path", doc,
				"devices", ctrl.Registry().Count(),
			)
		}
	} else {
		log.Info("no controller document, starting without devices")
	}

	// Shutdown hooks run in reverse: naming, API server, sequencer, devices.
	if err := ctrl.Initialise(ctx); err != nil {
		runHooks(hooks, log)
		return fmt.Errorf("initialising devices: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Controller: ctrl,
		Hub:        hub,
		MQTT:       stateSub,
		AuditRepo:  auditRepo,
		Version:    version,
	})
	if err != nil {
		runHooks(hooks, log)
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		runHooks(hooks, log)
		return fmt.Errorf("starting API server: %w", err)
	}
	hooks.OnShutdown("api", func(context.Context) error {
		return server.Close()
	})
	log.Info("API server started", "addr", server.Addr())

	if err := ctrl.Serve(ctx, cfg.BaseURL()); err != nil {
		runHooks(hooks, log)
		return fmt.Errorf("registering controller: %w", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		runHooks(hooks, log)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"name", ctrl.Name(),
		"devices", ctrl.Registry().Count(),
		"slaves", len(ctrl.Federation().Slaves()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	runHooks(hooks, log)

	log.Info("AVX controller stopped")
	return nil
}

// runHooks runs the shutdown chain with a fresh deadline; the caller's
// context is usually already cancelled by then.
func runHooks(hooks *lifecycle.Hooks, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := hooks.Run(ctx); err != nil {
		log.Error("shutdown completed with errors", "error", err)
	}
}

// getConfigPath returns the application config path.
// Precedence: --app-config flag, AVX_CONFIG environment variable, default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("AVX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads path, falling back to built-in defaults only when the
// default path is missing. An explicitly named file must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Defaults()
	}
	return cfg, err
}

// documentPath picks the controller document: the --config flag wins over
// controller.config_file.
func documentPath(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Controller.ConfigFile
}

// healthCheck verifies every enabled connection is healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database to check (nil if disabled)
//   - mqttClient: MQTT client to check (nil if disabled)
//   - influxClient: InfluxDB client to check (nil if disabled)
//   - server: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if server != nil {
		if err := server.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
