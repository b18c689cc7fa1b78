// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/hubctl/internal/log"
	"github.com/rs/zerolog"
)

// Environment keys. Each overrides the file value of the same setting.
const (
	EnvHubHost          = "HUBCTL_HUB_HOST"
	EnvHubPort          = "HUBCTL_HUB_PORT"
	EnvHubDomain        = "HUBCTL_HUB_DOMAIN"
	EnvReplyTimeout     = "HUBCTL_REPLY_TIMEOUT"
	EnvCommandTimeout   = "HUBCTL_COMMAND_TIMEOUT"
	EnvDialTimeout      = "HUBCTL_DIAL_TIMEOUT"
	EnvDevice           = "HUBCTL_DEVICE"
	EnvTriggerEnabled   = "HUBCTL_TRIGGER_ENABLED"
	EnvTriggerDelay     = "HUBCTL_TRIGGER_DELAY"
	EnvTriggerRate      = "HUBCTL_TRIGGER_RUNS_PER_HOUR"
	EnvListen           = "HUBCTL_LISTEN"
	EnvRateLimit        = "HUBCTL_RATE_LIMIT"
	EnvLogLevel         = "HUBCTL_LOG_LEVEL"
	EnvLogService       = "HUBCTL_LOG_SERVICE"
	EnvOTelEnabled      = "HUBCTL_OTEL_ENABLED"
	EnvOTelExporter     = "HUBCTL_OTEL_EXPORTER"
	EnvOTelEndpoint     = "HUBCTL_OTEL_ENDPOINT"
	EnvOTelSamplingRate = "HUBCTL_OTEL_SAMPLING_RATE"
)

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		logDefault(logger, key).Str("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	lowerKey := strings.ToLower(key)
	if strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password") {
		logger.Debug().
			Str("key", key).
			Str("source", "environment").
			Bool("sensitive", true).
			Msg("using environment variable")
		return value
	}
	logger.Debug().
		Str("key", key).
		Str("value", value).
		Str("source", "environment").
		Msg("using environment variable")
	return value
}

// ParseInt reads an integer from environment variable or returns default value.
// It validates the input and falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi, "integer")
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
// It falls back to default on parse errors or empty variables and logs the choice.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration, "duration")
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, "float")
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	}, "boolean")
}

func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error), kind string) T {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logDefault(logger, key).Interface("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msgf("invalid %s in environment variable, using default", kind)
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Interface("value", parsed).
		Str("source", "environment").
		Msg("using environment variable")
	return parsed
}

func logDefault(logger zerolog.Logger, key string) *zerolog.Event {
	return logger.Debug().Str("key", key).Str("source", "default")
}
