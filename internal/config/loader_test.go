// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/hubctl/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "hubctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_DefaultsNeedHost(t *testing.T) {
	_, err := NewLoader("", "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hub.host")
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv(EnvHubHost, "192.168.1.20")

	cfg, err := NewLoader("", "v-test").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Hub.Host = "192.168.1.20"
	want.Version = "v-test"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
hub:
  host: harmony.lan
  replyTimeout: 2s
  device: 31337
trigger:
  enabled: false
  delay: 90s
server:
  listen: 127.0.0.1:9000
telemetry:
  enabled: true
  exporter: http
  endpoint: collector:4318
  samplingRate: 0.25
logLevel: debug
`)
	loader := NewLoader(path, "v-test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "harmony.lan", cfg.Hub.Host)
	assert.Equal(t, DefaultHubPort, cfg.Hub.Port, "absent keys keep their default")
	assert.Equal(t, 2*time.Second, cfg.Hub.ReplyTimeout)
	assert.Equal(t, DefaultCommandTimeout, cfg.Hub.CommandTimeout)
	assert.Equal(t, 31337, cfg.Hub.Device)
	assert.False(t, cfg.Trigger.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Trigger.Delay)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "http", cfg.Telemetry.Exporter)
	assert.Equal(t, 0.25, cfg.Telemetry.SamplingRate)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, path, loader.Path())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "hub:\n  host: harmony.lan\n  port: 5222\ntrigger:\n  delay: 1m\n")
	t.Setenv(EnvHubHost, "10.0.0.5")
	t.Setenv(EnvHubPort, "6000")
	t.Setenv(EnvTriggerDelay, "15s")
	t.Setenv(EnvTriggerEnabled, "no")
	t.Setenv(EnvCommandTimeout, "not-a-duration")

	loader := NewLoader(path, "")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Hub.Host)
	assert.Equal(t, 6000, cfg.Hub.Port)
	assert.Equal(t, 15*time.Second, cfg.Trigger.Delay)
	assert.False(t, cfg.Trigger.Enabled)
	assert.Equal(t, DefaultCommandTimeout, cfg.Hub.CommandTimeout, "invalid env values fall back")

	for _, key := range []string{EnvHubHost, EnvHubPort, EnvTriggerDelay, EnvLogLevel} {
		assert.Contains(t, loader.ConsumedEnvKeys, key)
	}
}

func TestLoad_StrictFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		unknown bool
	}{
		{"unknown top-level key", "hub:\n  host: a\nbouquet: x\n", true},
		{"unknown nested key", "hub:\n  host: a\n  password: x\n", true},
		{"bad duration", "hub:\n  host: a\n  replyTimeout: soon\n", false},
		{"multiple documents", "hub:\n  host: a\n---\nhub:\n  host: b\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := NewLoader(path, "").Load()
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errorsIs(err, ErrUnknownConfigField))
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	t.Setenv(EnvHubHost, "hub.lan")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultReplyTimeout, cfg.Hub.ReplyTimeout)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0600))

	_, err := NewLoader(path, "").Load()
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Hub.Host = "hub.lan"
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"empty host", func(c *AppConfig) { c.Hub.Host = "" }, "hub.host"},
		{"port zero", func(c *AppConfig) { c.Hub.Port = 0 }, "hub.port"},
		{"port too large", func(c *AppConfig) { c.Hub.Port = 70000 }, "hub.port"},
		{"zero reply timeout", func(c *AppConfig) { c.Hub.ReplyTimeout = 0 }, "hub.replyTimeout"},
		{"negative command timeout", func(c *AppConfig) { c.Hub.CommandTimeout = -time.Second }, "hub.commandTimeout"},
		{"negative delay", func(c *AppConfig) { c.Trigger.Delay = -time.Second }, "trigger.delay"},
		{"device zero", func(c *AppConfig) { c.Hub.Device = 0 }, "hub.device"},
		{"bad listen", func(c *AppConfig) { c.Server.Listen = "8080" }, "server.listen"},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }, "logLevel"},
		{"bad exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ZeroDelayAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Hub.Host = "hub.lan"
	cfg.Trigger.Delay = 0
	assert.NoError(t, Validate(cfg))
}

func TestLoad_ExampleFile(t *testing.T) {
	path := filepath.Join(testutil.MustRepoRoot(t), "contrib", "hubctl.example.yaml")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Hub.Host = "192.168.1.20"
	want.Version = "test"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("example config differs from defaults (-want +got):\n%s", diff)
	}
}
