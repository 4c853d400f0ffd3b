// Package main provides the adit gateway daemon entrypoint.
//
// Usage:
//
//	aditd serve [--config path]
//
// The daemon serves HTTP until SIGINT or SIGTERM, then drains within
// the configured grace period: in-flight requests finish, running
// calls are cancelled, and a final metrics snapshot is written to the
// ledger.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/adit/adapter"
	"github.com/justapithecus/adit/adapter/redis"
	"github.com/justapithecus/adit/adapter/webhook"
	"github.com/justapithecus/adit/auth"
	"github.com/justapithecus/adit/cli/config"
	"github.com/justapithecus/adit/ledger"
	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/server"
	"github.com/justapithecus/adit/store"
	"github.com/justapithecus/adit/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "aditd",
		Usage:          "Adit remote execution gateway daemon",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to adit.yaml (defaults apply when omitted)",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := log.NewLogger("aditd", cfg.Log.Level)
	collector := metrics.NewCollector(storageBackend(cfg), cfg.Server.DefaultEnv)

	registry := runtime.NewRegistry(runtime.RegistryConfig{
		DefaultEnv:  cfg.Server.DefaultEnv,
		LogsRoot:    cfg.LogsRoot(),
		Concurrency: cfg.Server.EnvConcurrency,
		Seed:        runtime.Builtins(),
		Logger:      logger,
		Collector:   collector,
	})

	recorder, err := buildRecorder(cfg, collector, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("ledger setup failed: %v", err), 1)
	}

	publisher, err := buildPublisher(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter setup failed: %v", err), 1)
	}

	gate, err := buildGate(cfg, collector, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("auth setup failed: %v", err), 1)
	}

	disk := store.NewDisk(filepath.Join(cfg.DataRoot(), "objects"))

	dispatcher := runtime.NewDispatcher(registry, runtime.DispatcherConfig{
		GetWait:   cfg.Server.GetWait.Duration,
		Logger:    logger,
		Collector: collector,
		OnComplete: server.CompletionHook(server.CompletionConfig{
			Registry:  registry,
			Disk:      disk,
			Publisher: publisher,
			Logger:    logger,
		}),
	})

	// The default environment exists before the first request arrives.
	if _, err := registry.GetOrCreate(""); err != nil {
		return cli.Exit(fmt.Sprintf("default env setup failed: %v", err), 1)
	}

	srv, err := server.New(server.Config{
		DataDir:      cfg.DataRoot(),
		PollInterval: cfg.Server.PollInterval.Duration,
		GetWait:      cfg.Server.GetWait.Duration,
		Commit:       commit,
		Dispatcher:   dispatcher,
		Gate:         gate,
		Recorder:     recorder,
		Collector:    collector,
		Disk:         disk,
		Logger:       logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("server setup failed: %v", err), 1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: call and object reads stream for as long as
		// the work runs.
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	logger.Info("gateway listening", map[string]any{
		"addr":    cfg.Server.Addr,
		"env":     cfg.Server.DefaultEnv,
		"ledger":  cfg.Ledger.Enabled,
		"auth":    cfg.Auth.Enabled,
		"version": types.Version,
	})

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(fmt.Sprintf("server failed: %v", err), 1)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", map[string]any{
		"grace": cfg.Server.ShutdownGrace.Duration.String(),
	})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace.Duration)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", map[string]any{"error": err.Error()})
	}
	if n := dispatcher.CancelAll(); n > 0 {
		logger.Info("cancelled running calls", map[string]any{"count": n})
	}
	if err := recorder.RecordMetrics(shutdownCtx, collector.Snapshot()); err != nil {
		logger.Warn("final metrics write failed", map[string]any{"error": err.Error()})
	}
	if err := recorder.Close(); err != nil {
		logger.Warn("ledger close failed", map[string]any{"error": err.Error()})
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// loadConfig reads the config file when a path is given, otherwise
// serves with defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

// storageBackend names where ledger records land, used as a metrics
// dimension and surfaced by /check.
func storageBackend(cfg *config.Config) string {
	switch {
	case !cfg.Ledger.Enabled:
		return "none"
	case cfg.Ledger.S3.Bucket != "":
		return "s3"
	default:
		return "fs"
	}
}

// buildRecorder assembles the activity recorder from ledger config.
// Returns nil when the ledger is disabled; a nil recorder discards
// entries.
func buildRecorder(cfg *config.Config, collector *metrics.Collector, logger *log.Logger) (*ledger.Recorder, error) {
	if !cfg.Ledger.Enabled {
		return nil, nil
	}

	lcfg := ledger.Config{
		Dataset: cfg.Ledger.Dataset,
		Source:  cfg.Ledger.Source,
		RunID:   uuid.NewString(),
	}

	var (
		cl  ledger.Client
		err error
	)
	if cfg.Ledger.S3.Bucket != "" {
		cl, err = ledger.NewS3Client(lcfg, ledger.S3Config{
			Bucket:    cfg.Ledger.S3.Bucket,
			Prefix:    cfg.Ledger.S3.Prefix,
			Region:    cfg.Ledger.S3.Region,
			Endpoint:  cfg.Ledger.S3.Endpoint,
			PathStyle: cfg.Ledger.S3.PathStyle,
		})
	} else {
		cl, err = ledger.NewClient(lcfg, cfg.LedgerRoot())
	}
	if err != nil {
		return nil, err
	}

	return ledger.NewRecorder(ledger.NewInstrumentedClient(cl, collector), ledger.RecorderConfig{
		FlushCount:    cfg.Ledger.BufferSize,
		FlushInterval: cfg.Ledger.FlushInterval.Duration,
		Logger:        logger,
	})
}

// buildPublisher assembles the completion event fan-out from adapter
// config. Each adapter is active when its URL is set; returns nil when
// none are.
func buildPublisher(cfg *config.Config) (adapter.Adapter, error) {
	var targets adapter.Multi

	if cfg.Adapters.Redis.URL != "" {
		a, err := redis.New(redis.Config{
			URL:         cfg.Adapters.Redis.URL,
			Channel:     cfg.Adapters.Redis.Channel,
			Timeout:     cfg.Adapters.Redis.Timeout.Duration,
			MaxAttempts: cfg.Adapters.Redis.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		targets = append(targets, a)
	}

	if cfg.Adapters.Webhook.URL != "" {
		a, err := webhook.New(webhook.Config{
			URL:         cfg.Adapters.Webhook.URL,
			Headers:     cfg.Adapters.Webhook.Headers,
			Timeout:     cfg.Adapters.Webhook.Timeout.Duration,
			MaxAttempts: cfg.Adapters.Webhook.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		targets = append(targets, a)
	}

	switch len(targets) {
	case 0:
		return nil, nil
	case 1:
		return targets[0], nil
	default:
		return targets, nil
	}
}

// buildGate assembles the authorization gate. Returns nil when auth is
// disabled; a nil gate grants everything.
func buildGate(cfg *config.Config, collector *metrics.Collector, logger *log.Logger) (*auth.Gate, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}

	authority, err := auth.NewHTTPAuthority(auth.AuthorityConfig{
		URL:     cfg.Auth.AuthorityURL,
		Timeout: cfg.Auth.RequestTimeout.Duration,
	})
	if err != nil {
		return nil, err
	}
	return auth.NewGate(authority, collector, logger), nil
}
