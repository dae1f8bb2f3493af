package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wudi/registry/internal/appdeploy"
	"github.com/wudi/registry/internal/composition"
	"github.com/wudi/registry/internal/config"
	"github.com/wudi/registry/internal/inspect"
	"github.com/wudi/registry/internal/logging"
	"github.com/wudi/registry/internal/models"
	"github.com/wudi/registry/internal/policy"
	"github.com/wudi/registry/internal/server"
	"github.com/wudi/registry/internal/usage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/registry.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Schema Registry %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logger.Info("starting schema registry",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("addr", cfg.Server.Addr))

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to build registry", zap.Error(err))
		os.Exit(1)
	}

	srv, err := server.New(cfg.Server, registry, logger)
	if err != nil {
		logger.Error("failed to build server", zap.Error(err))
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(*configPath, logger)
	if err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	} else {
		watcher.OnChange(func(next *config.Config) {
			// Endpoints and pipeline wiring are fixed at startup; only log
			// level changes apply live.
			if next.Log.Level == cfg.Log.Level {
				return
			}
			reloaded, err := logging.New(next.Log.Level)
			if err != nil {
				logger.Error("invalid log level in reloaded config", zap.Error(err))
				return
			}
			logging.SetGlobal(reloaded)
			logger.Info("log level updated", zap.String("level", next.Log.Level))
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*models.Registry, error) {
	var usageStore usage.Store
	if cfg.Usage.Endpoint != "" {
		usageStore = usage.NewClient(cfg.Usage, logger)
	}

	var deployments appdeploy.Lookup
	if cfg.Usage.AppDeploymentEndpoint != "" {
		deployments = appdeploy.NewClient(cfg.Usage.AppDeploymentEndpoint, cfg.Usage.Timeout, logger)
	}

	var checker policy.Checker
	if cfg.Policy.Endpoint != "" {
		checker = policy.NewClient(cfg.Policy, logger)
	}

	var external *composition.ExternalClient
	if cfg.Composition.External.Enabled {
		external = composition.NewExternalClient(cfg.Composition.External, logger)
	}

	engine := inspect.NewEngine(cfg.Checks, nil, usageStore, deployments, logger)

	return models.NewRegistry(cfg, engine, policy.NewGate(checker), models.Orchestrators{
		Single:     composition.NewSingleOrchestrator(),
		Federation: composition.NewFederationOrchestrator(external, logger),
		Stitching:  composition.NewStitchingOrchestrator(),
	}, logger)
}
