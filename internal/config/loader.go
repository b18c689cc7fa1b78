// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath loads
// from defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the configuration file path, if any.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults, strict file parse, environment, validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause an error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	if h := f.Hub; h != nil {
		setIf(&cfg.Hub.Host, h.Host)
		setIf(&cfg.Hub.Port, h.Port)
		setIf(&cfg.Hub.Domain, h.Domain)
		setIf(&cfg.Hub.ReplyTimeout, h.ReplyTimeout)
		setIf(&cfg.Hub.CommandTimeout, h.CommandTimeout)
		setIf(&cfg.Hub.DialTimeout, h.DialTimeout)
		setIf(&cfg.Hub.Device, h.Device)
	}
	if t := f.Trigger; t != nil {
		setIf(&cfg.Trigger.Enabled, t.Enabled)
		setIf(&cfg.Trigger.Delay, t.Delay)
		setIf(&cfg.Trigger.RunsPerHour, t.RunsPerHour)
		setIf(&cfg.Trigger.RequireNetwork, t.RequireNetwork)
	}
	if s := f.Server; s != nil {
		setIf(&cfg.Server.Listen, s.Listen)
		setIf(&cfg.Server.RateLimit, s.RateLimit)
		setIf(&cfg.Server.ShutdownTimeout, s.ShutdownTimeout)
	}
	if t := f.Telemetry; t != nil {
		setIf(&cfg.Telemetry.Enabled, t.Enabled)
		setIf(&cfg.Telemetry.Exporter, t.Exporter)
		setIf(&cfg.Telemetry.Endpoint, t.Endpoint)
		setIf(&cfg.Telemetry.SamplingRate, t.SamplingRate)
		setIf(&cfg.Telemetry.Environment, t.Environment)
	}
	setIf(&cfg.LogLevel, f.LogLevel)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Hub.Host = l.envString(EnvHubHost, cfg.Hub.Host)
	cfg.Hub.Port = l.envInt(EnvHubPort, cfg.Hub.Port)
	cfg.Hub.Domain = l.envString(EnvHubDomain, cfg.Hub.Domain)
	cfg.Hub.ReplyTimeout = l.envDuration(EnvReplyTimeout, cfg.Hub.ReplyTimeout)
	cfg.Hub.CommandTimeout = l.envDuration(EnvCommandTimeout, cfg.Hub.CommandTimeout)
	cfg.Hub.DialTimeout = l.envDuration(EnvDialTimeout, cfg.Hub.DialTimeout)
	cfg.Hub.Device = l.envInt(EnvDevice, cfg.Hub.Device)

	cfg.Trigger.Enabled = l.envBool(EnvTriggerEnabled, cfg.Trigger.Enabled)
	cfg.Trigger.Delay = l.envDuration(EnvTriggerDelay, cfg.Trigger.Delay)
	cfg.Trigger.RunsPerHour = l.envInt(EnvTriggerRate, cfg.Trigger.RunsPerHour)

	cfg.Server.Listen = l.envString(EnvListen, cfg.Server.Listen)
	cfg.Server.RateLimit = l.envInt(EnvRateLimit, cfg.Server.RateLimit)

	cfg.Telemetry.Enabled = l.envBool(EnvOTelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvOTelExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvOTelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvOTelSamplingRate, cfg.Telemetry.SamplingRate)

	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogService = l.envString(EnvLogService, cfg.LogService)
}

// Wrapper methods record which keys were consulted.

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}
