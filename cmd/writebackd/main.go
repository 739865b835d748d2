// Package main implements the entry point for writebackd, the
// write-behind flush daemon. It provisions the event-log topics, attaches
// one durable batch worker per topic, and serves the operational HTTP
// endpoint (health and metrics).
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/merchstream/writeback/config"
	"github.com/merchstream/writeback/docstore"
	"github.com/merchstream/writeback/eventlog"
	"github.com/merchstream/writeback/faststore"
	"github.com/merchstream/writeback/health"
	"github.com/merchstream/writeback/metric"
	"github.com/merchstream/writeback/natsclient"
	"github.com/merchstream/writeback/pkg/crypt"
	"github.com/merchstream/writeback/worker"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "writebackd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(resolveLogSettings(cliCfg, cfg))
	slog.SetDefault(logger)

	slog.Info("Starting writebackd (write-behind flush pipeline)",
		"version", Version,
		"build_time", BuildTime,
		"environment", cfg.Service.Environment,
		"config_path", cliCfg.ConfigPath)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// Workers cannot open a single record without the secret, so a
	// missing key is fatal here rather than at the first flush.
	if os.Getenv(cfg.Security.SecretKeyEnv) == "" {
		return fmt.Errorf("secret key missing: environment variable %s is empty", cfg.Security.SecretKeyEnv)
	}

	ctx := context.Background()
	registry := metric.NewRegistry()
	metrics := registry.CoreMetrics()

	broker, err := connectBroker(ctx, cfg, registry)
	if err != nil {
		return err
	}

	store, fast, err := openStores(ctx, cfg, broker, metrics)
	if err != nil {
		_ = broker.Close(ctx)
		return err
	}
	defer func() {
		_ = fast.Close()
		_ = store.Close()
	}()

	orchestrator, err := buildOrchestrator(cfg, broker, store, metrics, logger)
	if err != nil {
		_ = broker.Close(ctx)
		return err
	}

	monitor, checker := buildHealth(cfg, broker, store, fast, metrics, logger)

	ops := metric.NewServer(cfg.Ops.ListenAddr, "/metrics", registry)
	ops.SetHealthHandler(monitor.Handler(cfg.Service.Name))

	return runWithSignalHandling(ctx, orchestrator, checker, ops, cliCfg.ShutdownTimeout)
}

// loadConfiguration merges defaults, the optional config file, and
// environment overrides.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		if err := loader.LoadFile(cliCfg.ConfigPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// connectBroker creates the broker client and blocks until the connection
// is ready or the connect timeout expires.
func connectBroker(ctx context.Context, cfg *config.Config, registry *metric.Registry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithClientName(cfg.Service.Name),
		natsclient.WithMaxReconnects(cfg.Broker.MaxReconnects),
		natsclient.WithReconnectWait(cfg.Broker.ReconnectWait.Std()),
		natsclient.WithTimeout(cfg.Broker.ConnectTimeout.Std()),
		natsclient.WithMetrics(registry),
	}
	if cfg.Broker.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Broker.Username, cfg.Broker.Password))
	}
	if cfg.Broker.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Broker.Token))
	}

	broker, err := natsclient.NewClient(strings.Join(cfg.Broker.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create broker client: %w", err)
	}

	slog.Info("Connecting to broker", "urls", cfg.Broker.URLs)
	if err := broker.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.Broker.ConnectTimeout.Std())
	defer cancel()
	if err := broker.WaitForConnection(connCtx); err != nil {
		_ = broker.Close(ctx)
		return nil, fmt.Errorf("broker connection timeout: %w", err)
	}

	return broker, nil
}

// openStores opens the document store (running schema migration) and the
// fast store. The fast store is opened here so the daemon provisions the
// cache bucket and can probe it, even though flushing never reads it.
func openStores(
	ctx context.Context,
	cfg *config.Config,
	broker *natsclient.Client,
	metrics *metric.Metrics,
) (*docstore.Store, faststore.Store, error) {
	store := docstore.NewStore(cfg.DocStore, docstore.WithMetrics(metrics))
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure document-store schema: %w", err)
	}
	slog.Info("Document store ready", "driver", cfg.DocStore.Driver)

	fast, err := faststore.New(ctx, cfg.FastStore, broker)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("open fast store: %w", err)
	}
	slog.Info("Fast store ready", "mode", cfg.FastStore.Mode)

	return store, fast, nil
}

// buildOrchestrator assembles the per-topic batch workers. The broker
// connection is handed over: the orchestrator closes it during Stop.
func buildOrchestrator(
	cfg *config.Config,
	broker *natsclient.Client,
	store *docstore.Store,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*worker.Orchestrator, error) {
	orchestrator, err := worker.New(worker.Options{
		Registry:    eventlog.NewRegistry(broker, cfg.Topics, logger),
		Consumers:   broker,
		Store:       store,
		Gate:        crypt.New(cfg.Security.SecretKeyEnv),
		Topics:      cfg.Topics,
		Batch:       cfg.Batch,
		Connections: []worker.Closer{broker},
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build worker orchestrator: %w", err)
	}
	return orchestrator, nil
}

// buildHealth wires the periodic checker over the three backing
// resources.
func buildHealth(
	cfg *config.Config,
	broker *natsclient.Client,
	store *docstore.Store,
	fast faststore.Store,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*health.Monitor, *health.Checker) {
	monitor := health.NewMonitor()
	resources := []health.Resource{
		{Name: "broker", Ping: func(context.Context) error {
			_, err := broker.RTT()
			return err
		}},
		{Name: "docstore", Ping: store.Ping},
		{Name: "faststore", Ping: fast.Ping},
	}
	checker := health.NewChecker(monitor, cfg.Ops.HealthInterval.Std(), resources,
		health.WithMetrics(metrics),
		health.WithLogger(logger))
	return monitor, checker
}

// runWithSignalHandling starts the pipeline and blocks until a shutdown
// signal arrives or the ops server fails.
func runWithSignalHandling(
	ctx context.Context,
	orchestrator *worker.Orchestrator,
	checker *health.Checker,
	ops *metric.Server,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := orchestrator.Start(signalCtx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	if err := checker.Start(signalCtx); err != nil {
		_ = orchestrator.Stop(shutdownTimeout)
		return fmt.Errorf("start health checker: %w", err)
	}

	opsErr := make(chan error, 1)
	go func() { opsErr <- ops.Start() }()

	slog.Info("writebackd started", "ops_endpoint", ops.Address())

	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-opsErr:
		if err != nil {
			slog.Error("Ops server failed", "error", err)
		}
	}

	return shutdown(orchestrator, checker, ops, shutdownTimeout)
}

// shutdown tears the pipeline down in reverse start order: ops endpoint,
// health checker, then the workers (which close the broker connection).
// Every step runs regardless of earlier failures.
func shutdown(
	orchestrator *worker.Orchestrator,
	checker *health.Checker,
	ops *metric.Server,
	timeout time.Duration,
) error {
	var errs []error

	if err := ops.Stop(); err != nil {
		errs = append(errs, err)
	}
	checker.Stop()
	if err := orchestrator.Stop(timeout); err != nil {
		errs = append(errs, err)
	}

	if err := stderrors.Join(errs...); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	slog.Info("writebackd shutdown complete")
	return nil
}
