// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ManuGH/hubctl/internal/config"
	"github.com/ManuGH/hubctl/internal/daemon"
	"github.com/ManuGH/hubctl/internal/health"
	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/ManuGH/hubctl/internal/telemetry"
	"github.com/ManuGH/hubctl/internal/trigger"
	"github.com/ManuGH/hubctl/internal/version"
	"golang.org/x/sync/errgroup"
)

// serve runs the daemon until ctx ends.
func serve(ctx context.Context, cfg config.AppConfig, configPath string) error {
	logger := xglog.WithComponent("daemon")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	holder := config.NewHolder(cfg, config.NewLoader(configPath, version.Version))
	schedulerUpdates := make(chan config.AppConfig, 1)
	levelUpdates := make(chan config.AppConfig, 1)
	holder.RegisterListener(schedulerUpdates)
	holder.RegisterListener(levelUpdates)

	scheduler := trigger.New(trigger.Options{Config: cfg})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewHubChecker(func() string {
		hub := holder.Get().Hub
		return net.JoinHostPort(hub.Host, strconv.Itoa(hub.Port))
	}, cfg.Hub.DialTimeout))
	hm.RegisterChecker(health.NewLastRunChecker(scheduler.LastRun))

	router := daemon.NewRouter(daemon.RouterConfig{
		Controller:  scheduler,
		Health:      hm,
		RateLimit:   cfg.Server.RateLimit,
		ServiceName: cfg.LogService,
	})
	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{Logger: logger, APIHandler: router})
	if err != nil {
		return err
	}
	// Hooks run last-registered first: the scheduler stops before traces flush.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("config-watcher", func(context.Context) error {
		holder.Stop()
		return nil
	})
	mgr.RegisterShutdownHook("scheduler", func(context.Context) error {
		scheduler.Close()
		return nil
	})

	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config hot reload unavailable")
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str(xglog.FieldHub, cfg.Hub.Host).
		Str("addr", cfg.Server.Listen).
		Bool("trigger_enabled", cfg.Trigger.Enabled).
		Msg("starting hubctl daemon")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Start(gctx) })
	g.Go(func() error { return scheduler.Watch(gctx, schedulerUpdates) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-levelUpdates:
				if !xglog.SetLevel(next.LogLevel) {
					logger.Warn().Str("level", next.LogLevel).Msg("ignoring unknown log level")
				}
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("daemon exiting")
	return nil
}
