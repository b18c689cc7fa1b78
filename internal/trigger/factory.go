// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package trigger

import (
	"context"

	"github.com/ManuGH/hubctl/internal/config"
	"github.com/ManuGH/hubctl/internal/harmony"
	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/ManuGH/hubctl/internal/xmpp"
)

// Task is one power-off session. *harmony.PowerOffTask implements it.
type Task interface {
	Run(ctx context.Context) error
	Stop()
}

// TaskFactory creates the task for one run.
type TaskFactory func(cfg config.AppConfig, dryRun bool) Task

// HubOptions maps the hub configuration onto session options.
func HubOptions(hub config.HubConfig, dryRun bool) harmony.Options {
	return harmony.Options{
		Host:           hub.Host,
		Port:           hub.Port,
		Domain:         hub.Domain,
		ReplyTimeout:   hub.ReplyTimeout,
		CommandTimeout: hub.CommandTimeout,
		DialTimeout:    hub.DialTimeout,
		ActivityID:     hub.Device,
		DryRun:         dryRun,
	}
}

// NewHarmonyTask is the production TaskFactory. Its tasks share
// xmpp.DefaultRegistry with the hub providers installed.
func NewHarmonyTask(cfg config.AppConfig, dryRun bool) Task {
	harmony.RegisterProviders()
	opts := HubOptions(cfg.Hub, dryRun)
	opts.Registry = xmpp.DefaultRegistry
	logger := xglog.WithComponent("harmony")
	opts.Listener = harmony.ListenerFunc(func(step, total int) {
		logger.Debug().
			Str(xglog.FieldEvent, "harmony.progress").
			Int("step", step).
			Int("total", total).
			Msg("session progress")
	})
	return harmony.NewPowerOffTask(opts)
}
