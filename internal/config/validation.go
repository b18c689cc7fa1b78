// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"

	"github.com/ManuGH/hubctl/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Host("hub.host", cfg.Hub.Host)
	v.Port("hub.port", cfg.Hub.Port)
	v.NotEmpty("hub.domain", cfg.Hub.Domain)
	v.PositiveDuration("hub.replyTimeout", cfg.Hub.ReplyTimeout)
	v.PositiveDuration("hub.commandTimeout", cfg.Hub.CommandTimeout)
	v.PositiveDuration("hub.dialTimeout", cfg.Hub.DialTimeout)
	v.Custom("hub.device", cfg.Hub.Device, func(val any) error {
		if d := val.(int); d == 0 || d < -1 {
			return errors.New("device must be -1 (all off) or a positive activity id")
		}
		return nil
	})

	v.NonNegativeDuration("trigger.delay", cfg.Trigger.Delay)
	v.Range("trigger.runsPerHour", cfg.Trigger.RunsPerHour, 1, 3600)

	v.ListenAddr("server.listen", cfg.Server.Listen)
	v.Range("server.rateLimit", cfg.Server.RateLimit, 1, 100000)
	v.PositiveDuration("server.shutdownTimeout", cfg.Server.ShutdownTimeout)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.OneOf("logLevel", cfg.LogLevel, validate.LogLevels())

	return v.Err()
}
