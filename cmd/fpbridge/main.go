// fpbridge connects a serial fingerprint enrolment device to browser
// clients over WebSocket, keeping the registry of enrolled identities.
//
// Optional integrations (SQLite activity journal, MQTT mirror, InfluxDB
// telemetry) are enabled in the config file. A failure in any of them is
// logged and the bridge keeps serving; only an invalid config or a busy
// listen port stops the process.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/fingerprint-bridge/internal/api"
	"github.com/nerrad567/fingerprint-bridge/internal/bridges/fingerprint"
	"github.com/nerrad567/fingerprint-bridge/internal/history"
	"github.com/nerrad567/fingerprint-bridge/internal/hub"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/config"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/database"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/serialport"
	"github.com/nerrad567/fingerprint-bridge/internal/registry"
	"github.com/nerrad567/fingerprint-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultSampleInterval is how often bridge gauges are written to InfluxDB.
const defaultSampleInterval = time.Minute

// options are the parsed command-line flags.
type options struct {
	configPath  string
	listPorts   bool
	showVersion bool
	help        bool
}

func main() {
	opts, usage, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	switch {
	case opts.help:
		fmt.Fprint(os.Stdout, usage)
		return
	case opts.showVersion:
		fmt.Fprintf(os.Stdout, "fpbridge %s (commit %s, built %s)\n", version, commit, date)
		return
	case opts.listPorts:
		if err := printPorts(os.Stdout, serialport.ListPorts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args and returns the options and the usage text.
func parseFlags(args []string) (options, string, error) {
	var opts options

	fs := pflag.NewFlagSet("fpbridge", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (env FPBRIDGE_CONFIG)")
	fs.BoolVar(&opts.listPorts, "list-ports", false, "print available serial ports and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "show this help")

	usage := "Usage: fpbridge [flags]\n\n" + fs.FlagUsages()

	if err := fs.Parse(args); err != nil {
		return options{}, usage, err
	}
	if fs.NArg() > 0 {
		return options{}, usage, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("FPBRIDGE_CONFIG")
	}
	return opts, usage, nil
}

// printPorts writes one serial port name per line.
func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("listing serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

// run wires every component and blocks until ctx is cancelled.
// Deferred shutdown runs in reverse start order.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting fpbridge", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "level", cfg.Logging.Level)

	reg := registry.New(registry.NewFileStore(cfg.Registry.Path), log.With("component", "registry"))
	reg.Load()
	log.Info("registry loaded", "path", cfg.Registry.Path, "users", reg.Count())

	link := serialport.Connect(serialport.Options{Config: cfg.Serial, Logger: log.With("component", "serial")})
	defer func() {
		log.Info("closing serial link")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing serial link", "error", closeErr)
		}
	}()

	var sinks []fingerprint.ActivitySink

	journal, db := openJournal(ctx, cfg.Database, log)
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		sinks = append(sinks, fingerprint.HistorySink{Repo: journal})
	}

	influxClient := connectInflux(ctx, cfg.InfluxDB, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sinks = append(sinks, fingerprint.TelemetrySink{Writer: influxClient})
	}

	ctrl, err := fingerprint.NewController(fingerprint.Options{
		Registry:     reg,
		Link:         link,
		Hub:          hub.New(log.With("component", "hub")),
		PollInterval: cfg.Serial.PollInterval(),
		Sinks:        sinks,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	// Background loops stop on ctx; wait for them before closing what
	// they write to.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctrl.Run(ctx)
	}()
	if journal != nil {
		retention := time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour
		wg.Add(1)
		go func() {
			defer wg.Done()
			history.RunPruner(ctx, journal, retention, log)
		}()
	}
	if influxClient != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fingerprint.RunSampler(ctx, ctrl, influxClient, defaultSampleInterval)
		}()
	}

	mqttClient := connectMQTT(cfg.MQTT, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		topics := mqttClient.Topics()
		mirror := fingerprint.NewMirror(fingerprint.MirrorConfig{
			Client: mqttClient,
			Topics: topics,
			QoS:    mqttClient.QoS(),
			Logger: log,
		})
		if startErr := mirror.Start(ctx, ctrl); startErr != nil {
			log.Warn("MQTT mirror failed to start", "error", startErr)
		} else {
			defer mirror.Stop()
			log.Info("MQTT mirror started", "events", topics.Events(), "commands", topics.Command())
		}

		reporter := fingerprint.NewHealthReporter(fingerprint.HealthReporterConfig{
			Version:   version,
			Topic:     topics.Health(),
			Publisher: mqttClient,
			Source:    ctrl,
			Logger:    log,
		})
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Bridge:  ctrl,
		Link:    link,
		DB:      db,
		Version: version,
	}
	// Interface fields stay nil when the backend is disabled.
	if journal != nil {
		deps.History = journal
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", srv.Addr(),
		"device_connected", ctrl.DeviceConnected(),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openJournal opens the SQLite activity journal when enabled. A failure is
// logged and the bridge runs without a journal.
func openJournal(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*history.SQLiteRepository, *database.DB) {
	if !cfg.Enabled {
		log.Info("activity journal disabled")
		return nil, nil
	}

	db, err := database.Open(ctx, database.ConfigFrom(cfg))
	if err != nil {
		log.Warn("activity journal unavailable", "path", cfg.Path, "error", err)
		return nil, nil
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		log.Warn("activity journal migrations failed", "error", err)
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
		return nil, nil
	}

	log.Info("activity journal ready", "path", cfg.Path)
	return history.NewSQLiteRepository(db.DB), db
}

// connectInflux connects to InfluxDB when enabled. A failure is logged and
// telemetry is skipped.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(ctx, cfg)
	if err != nil {
		log.Warn("InfluxDB unavailable, telemetry disabled", "url", cfg.URL, "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return client
}

// connectMQTT connects to the broker when enabled. A failure is logged and
// the mirror is skipped.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT unavailable, mirror disabled",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"error", err,
		)
		return nil
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}
