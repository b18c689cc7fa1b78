// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ManuGH/hubctl/internal/config"
	"github.com/ManuGH/hubctl/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts
// serving. Only a listen address that cannot be bound is fatal; an
// unresolvable hub is logged because it may come up later.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkListenAddr(logger, cfg.Server.Listen); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	checkHubResolvable(ctx, logger, cfg.Hub.Host)

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot bind %s: %w", addr, err)
	}
	_ = ln.Close()
	logger.Info().Str("addr", addr).Msg("listen address is available")
	return nil
}

func checkHubResolvable(ctx context.Context, logger zerolog.Logger, host string) {
	if net.ParseIP(host) != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldHub, host).Msg("hub host does not resolve yet")
		return
	}
	logger.Info().Str(log.FieldHub, host).Strs("addrs", addrs).Msg("hub host resolves")
}
