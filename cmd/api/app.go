package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"chainhealth/internal/adapter/metrics"
	"chainhealth/internal/adapter/probe"
	"chainhealth/internal/adapter/storage/memory"
	"chainhealth/internal/adapter/storage/registry"
	"chainhealth/internal/application"
	"chainhealth/internal/application/port"
	"chainhealth/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	catalog   *registry.Repository
	syncer    *registry.Syncer
	unhealthy *memory.UnhealthyCache
	metrics   *metrics.Collector
	service   port.ChainHealthService
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	logger.Info("Initializing dependencies...")

	catalog, err := registry.NewRepository(cfg.Registry, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	syncer := registry.NewSyncer(cfg.Registry, registry.ExecRunner{}, catalog.Invalidate, logger)

	unhealthy := memory.NewUnhealthyCache(cfg.Unhealthy.SweepInterval, logger)
	healthCache := memory.NewHealthCache(cfg.HealthCache.TTL, logger)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	collector.RegisterUnhealthySize(reg, unhealthy.Size)

	reachability := probe.NewReachabilityProber(cfg.Prober, nil, logger)
	liveness := probe.NewLivenessProber(cfg.Prober, unhealthy, logger)

	selector := application.NewSelector(catalog, unhealthy, reachability, liveness, collector, logger)
	service := application.NewChainHealthService(selector, catalog, healthCache, unhealthy, collector, cfg.HealthCache, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		catalog:   catalog,
		syncer:    syncer,
		unhealthy: unhealthy,
		metrics:   collector,
		service:   service,
	}, nil
}

// prepareRegistry syncs the registry snapshot when enabled. A failed sync is fatal only when
// no local snapshot exists and no static catalog is configured.
func (a *app) prepareRegistry(ctx context.Context) error {
	if !a.cfg.Registry.SyncOnStartup {
		return nil
	}
	err := a.syncer.Sync(ctx)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(a.cfg.Registry.Dir); errors.Is(statErr, os.ErrNotExist) && a.cfg.Registry.StaticFile == "" {
		return fmt.Errorf("no chain registry available: %w", err)
	}
	a.logger.Warn("Registry sync failed, using existing data", zap.Error(err))
	return nil
}
