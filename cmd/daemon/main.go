// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command daemon runs the camera image relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ManuGH/camproxy/internal/api"
	"github.com/ManuGH/camproxy/internal/config"
	"github.com/ManuGH/camproxy/internal/daemon"
	"github.com/ManuGH/camproxy/internal/health"
	xglog "github.com/ManuGH/camproxy/internal/log"
	"github.com/ManuGH/camproxy/internal/platform/httpx"
	"github.com/ManuGH/camproxy/internal/relay"
	"github.com/ManuGH/camproxy/internal/telemetry"
	"github.com/ManuGH/camproxy/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the configuration is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: config.DefaultLogService,
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, strings.TrimSpace(*configPath), logger); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("relay exited with error")
	}
	logger.Info().Msg("server exiting")
}

func run(ctx context.Context, configPath string, logger zerolog.Logger) error {
	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		logger.Error().Err(err).
			Str("event", "config.load_failed").
			Str("config_path", configPath).
			Msg("failed to load configuration")
		return err
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")
	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", configPath).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	resolver, err := newResolver(cfg, tp.Enabled())
	if err != nil {
		return err
	}

	hm := health.NewManager(cfg.Version)
	drain := health.NewDrainChecker()
	hm.RegisterChecker(drain)
	hm.SetDetail("strategy_order", cfg.Relay.StrategyOrder)
	hm.SetDetail("forbidden_fallback", cfg.Relay.ForbiddenFallback)
	hm.SetDetail("telemetry", tp.Enabled())

	tracingService := ""
	if tp.Enabled() {
		tracingService = cfg.LogService
	}
	srv, err := api.New(cfg, api.Deps{Resolver: resolver, Health: hm, TracingService: tracingService})
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}

	app, err := daemon.NewApp(daemon.Deps{
		Logger:          logger,
		Server:          srv,
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		OnDrain:         drain.Drain,
	})
	if err != nil {
		return err
	}
	app.AddShutdownHook("telemetry", tp.Shutdown)

	return app.Run(ctx)
}

func newResolver(cfg config.AppConfig, tracing bool) (*relay.Resolver, error) {
	order, err := relay.ParseStrategyOrder(cfg.Relay.StrategyOrder)
	if err != nil {
		return nil, fmt.Errorf("relay.strategy_order: %w", err)
	}
	forbidden, err := relay.ParseForbiddenFallback(cfg.Relay.ForbiddenFallback)
	if err != nil {
		return nil, fmt.Errorf("relay.forbidden_fallback: %w", err)
	}

	guard, err := api.TargetGuard(cfg)
	if err != nil {
		return nil, err
	}

	client := httpx.NewClient(httpx.Options{
		AttemptTimeout:     cfg.Relay.AttemptTimeout,
		InsecureSkipVerify: cfg.Relay.InsecureSkipVerify,
		RequestsPerSecond:  cfg.Relay.OutboundRPS,
		Tracing:            tracing,
		Guard:              guard,
	})
	return relay.NewResolver(relay.Options{
		Client:            client,
		AttemptTimeout:    cfg.Relay.AttemptTimeout,
		Order:             order,
		ForbiddenFallback: forbidden,
		UserAgent:         cfg.Relay.UserAgent,
		MaxBodyBytes:      cfg.Relay.MaxBodyBytes,
	})
}
