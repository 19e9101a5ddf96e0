// tempsense - temperature sensor publisher
//
// This is the main entry point for tempsense. Every cycle it reads the
// current outdoor temperature from a public observation API (or simulates
// one when the API is unavailable), publishes it to an MQTT broker and
// stores it for the dashboard query.
//
// Usage:
//
//	tempsense [flags] [run]     publish on the configured interval
//	tempsense [flags] history   print the last 24 hours of readings
//	tempsense [flags] migrate   apply (or with -down, roll back) SQLite migrations
//	tempsense version           print build information
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/tempsense/internal/api"
	"github.com/nerrad567/tempsense/internal/cycle"
	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/infrastructure/database"
	"github.com/nerrad567/tempsense/internal/infrastructure/logging"
	"github.com/nerrad567/tempsense/internal/infrastructure/mqtt"
	"github.com/nerrad567/tempsense/internal/metrics"
	"github.com/nerrad567/tempsense/internal/retry"
	"github.com/nerrad567/tempsense/internal/source"
	"github.com/nerrad567/tempsense/internal/store"
	"github.com/nerrad567/tempsense/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errCycleIncomplete is returned by a -once run whose reading was not
// both published and stored.
var errCycleIncomplete = errors.New("cycle incomplete")

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath string
	once       bool
	down       bool
	command    string
}

// parseArgs parses flags and the optional subcommand.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("tempsense", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&opts.once, "once", false, "run a single cycle and exit")
	fs.BoolVar(&opts.down, "down", false, "migrate: roll back the latest migration")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.command = "run"
	if fs.NArg() > 0 {
		// Flags may also follow the subcommand
		opts.command = fs.Arg(0)
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return options{}, err
		}
		if fs.NArg() > 0 {
			return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
		}
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination for command output (history, version)
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}

	if opts.command == "version" {
		fmt.Fprintf(stdout, "tempsense %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", opts.configPath, "command", opts.command)

	switch opts.command {
	case "run":
		return runSensor(ctx, cfg, log, opts.once)
	case "history":
		return runHistory(ctx, cfg, stdout)
	case "migrate":
		return runMigrate(ctx, cfg, log, opts.down, stdout)
	default:
		return fmt.Errorf("unknown command %q (want run, history, migrate or version)", opts.command)
	}
}

// runSensor wires the publish loop and blocks until ctx is cancelled.
// With once set it runs a single cycle instead.
func runSensor(ctx context.Context, cfg *config.Config, log *logging.Logger, once bool) error {
	log.Info("starting tempsense",
		"version", version,
		"commit", commit,
		"build_date", date,
		"device_id", cfg.Device.ID,
	)

	m := metrics.New()

	// Open the reading store (runs SQLite migrations)
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening reading store: %w", err)
	}
	defer func() {
		log.Info("closing reading store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing reading store", "error", closeErr)
		}
	}()
	log.Info("reading store ready", "backend", cfg.Store.Backend)

	// The controller owns the transport and closes it on exit
	transport, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	transport.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT client created",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", transport.ClientID(),
		"tls", cfg.MQTT.TLS.Enabled,
	)

	src := source.New(cfg.Source,
		source.WithLogger(log.With("component", "source")),
		source.WithMetrics(m),
	)

	ctrl := cycle.New(cycle.Config{
		DeviceID:      cfg.Device.ID,
		Topic:         cfg.MQTT.Topic,
		Interval:      cfg.Cycle.Interval,
		PublishPolicy: retry.Policy(cfg.Cycle.PublishRetry),
		WriteTimeout:  cfg.Cycle.WriteTimeout,
	}, src, transport, st,
		cycle.WithLogger(log.With("component", "cycle")),
		cycle.WithMetrics(m),
	)

	if cfg.API.Enabled && !once {
		srv, srvErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.With("component", "api"),
			Store:    st,
			Metrics:  m,
			DeviceID: cfg.Device.ID,
			Version:  version,
			Checks: map[string]api.HealthFunc{
				"store":     st.HealthCheck,
				"transport": transport.HealthCheck,
			},
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if srvErr := srv.Start(ctx); srvErr != nil {
			return fmt.Errorf("starting API server: %w", srvErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if once {
		report := ctrl.RunOnce(ctx)
		if closeErr := transport.Close(); closeErr != nil {
			log.Warn("error closing MQTT", "error", closeErr)
		}
		if !report.Published() || !report.Persisted() {
			return fmt.Errorf("%w: published=%t persisted=%t", errCycleIncomplete, report.Published(), report.Persisted())
		}
		return nil
	}

	log.Info("tempsense running", "interval", cfg.Cycle.Interval, "topic", cfg.MQTT.Topic)
	ctrl.Run(ctx)
	log.Info("shutdown signal received, stopping...")
	return nil
}

// runHistory prints the device's readings from the last 24 hours,
// oldest first, or "no data" when there are none.
func runHistory(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening reading store: %w", err)
	}
	defer st.Close() //nolint:errcheck // read-only command

	readings, _, err := store.Recent(ctx, st, cfg.Device.ID, time.Now())
	if err != nil {
		return fmt.Errorf("querying readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Fprintln(stdout, "no data")
		return nil
	}
	for _, r := range readings {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", r.Time().Format(time.RFC3339), r.DeviceID, r.Temperature.StringFixed(2))
	}
	return nil
}

// runMigrate applies pending SQLite migrations, or rolls back the latest
// one when down is set, then prints the applied versions.
func runMigrate(ctx context.Context, cfg *config.Config, log *logging.Logger, down bool, stdout io.Writer) error {
	if cfg.Store.Backend != config.BackendSQLite {
		return fmt.Errorf("migrate only applies to the %q backend", config.BackendSQLite)
	}

	db, err := database.Open(ctx, cfg.Store.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // reported by the migration result

	if down {
		if err := db.MigrateDown(ctx, migrations.FS); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		log.Info("latest migration rolled back", "path", db.Path())
	} else {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied", "path", db.Path())
	}

	applied, err := db.Applied(ctx)
	if err != nil {
		return err
	}
	for _, v := range applied {
		fmt.Fprintln(stdout, v)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TEMPSENSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TEMPSENSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
