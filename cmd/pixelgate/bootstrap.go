package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/config"
	"github.com/pixelgate/pixelgate/gateway"
	"github.com/pixelgate/pixelgate/gateway/adapters"
	"github.com/pixelgate/pixelgate/gateway/adapters/flux"
	"github.com/pixelgate/pixelgate/gateway/adapters/jimeng"
	"github.com/pixelgate/pixelgate/gateway/adapters/openai"
	"github.com/pixelgate/pixelgate/gateway/adapters/stability"
	"github.com/pixelgate/pixelgate/internal/cache"
	"github.com/pixelgate/pixelgate/internal/metrics"
)

// app holds everything a command needs after bootstrap.
type app struct {
	dispatcher *gateway.Dispatcher
	logger     *zap.Logger

	resultCache *cache.ResultCache
	metricsSrv  interface{ Shutdown(context.Context) error }
	watcher     *config.Watcher
}

// mustBootstrap loads configuration and wires the full pipeline, exiting
// on any error. Commands call shutdown when done.
func mustBootstrap(configPath string) *app {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.WithValidator((*config.Config).Validate).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	logger.Info("starting pixelgate",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit))

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build provider registry", zap.Error(err))
	}

	a := &app{logger: logger}

	var gwCache gateway.Cache
	if cfg.Cache.Enabled {
		rc, err := cache.New(cache.Config{
			Addr:       cfg.Cache.Addr,
			Password:   cfg.Cache.Password,
			DB:         cfg.Cache.DB,
			DefaultTTL: cfg.Cache.DefaultTTL,
			PoolSize:   cfg.Cache.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn("result cache unavailable, continuing without it", zap.Error(err))
		} else {
			a.resultCache = rc
			gwCache = rc
		}
	}

	var gwMetrics gateway.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		gwMetrics = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
		a.metricsSrv = startMetricsServer(cfg.Metrics, reg, logger)
	}

	a.dispatcher = gateway.NewDispatcher(gateway.DispatcherConfig{
		Registry: registry,
		Cache:    gwCache,
		Metrics:  gwMetrics,
		Retry:    cfg.Retry.ToRetryConfig(),
		Logger:   logger,
	})

	if configPath != "" {
		a.watcher = startConfigWatcher(configPath, a.dispatcher, logger)
	}

	return a
}

// buildRegistry registers the built-in providers and applies YAML profile
// overrides. An override entry replaces the built-in profile of the same
// name; entries naming an unknown provider are rejected since no adapter
// exists for them.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*gateway.Registry, error) {
	client := adapters.DefaultClient()

	builtins := []struct {
		profile gateway.ProviderProfile
		factory gateway.AdapterFactory
	}{
		{openai.DefaultProfile(), openai.Factory(client, logger)},
		{jimeng.DefaultProfile(), jimeng.Factory(client, logger)},
		{stability.DefaultProfile(), stability.Factory(client, logger)},
		{flux.DefaultProfile(), flux.Factory(client, logger)},
	}

	overrides, err := cfg.Profiles()
	if err != nil {
		return nil, err
	}
	overrideByName := make(map[string]gateway.ProviderProfile, len(overrides))
	for _, p := range overrides {
		overrideByName[p.Name] = p
	}

	registry := gateway.NewRegistry()
	for _, b := range builtins {
		profile := b.profile
		if override, ok := overrideByName[profile.Name]; ok {
			profile = override
			delete(overrideByName, profile.Name)
		}
		if err := registry.Register(profile, b.factory); err != nil {
			return nil, err
		}
	}
	for name := range overrideByName {
		return nil, fmt.Errorf("config names provider %q but no adapter is built in", name)
	}
	return registry, nil
}

// startConfigWatcher hot-reloads provider profiles when the config file
// changes. Load errors keep the running profile set.
func startConfigWatcher(path string, dispatcher *gateway.Dispatcher, logger *zap.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(config.NewLoader(), path, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
		return nil
	}
	watcher.OnReload(func(cfg *config.Config) {
		profiles, err := cfg.Profiles()
		if err != nil {
			logger.Warn("reloaded config has invalid profiles, keeping previous", zap.Error(err))
			return
		}
		if len(profiles) == 0 {
			return
		}
		if err := dispatcher.Reload(profiles); err != nil {
			logger.Warn("profile reload rejected", zap.Error(err))
		}
	})
	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
		return nil
	}
	return watcher
}

func (a *app) shutdown() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if a.resultCache != nil {
		_ = a.resultCache.Close()
	}
	_ = a.logger.Sync()
}
