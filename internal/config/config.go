// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for hubctl.
package config

import "time"

// Defaults mirror the hub's fixed protocol constants.
const (
	DefaultHubPort         = 5222
	DefaultHubDomain       = "harmonyhub"
	DefaultReplyTimeout    = 5 * time.Second
	DefaultCommandTimeout  = 30 * time.Second
	DefaultDialTimeout     = 5 * time.Second
	DefaultDevice          = -1
	DefaultTriggerDelay    = 5 * time.Minute
	DefaultRunsPerHour     = 6
	DefaultListen          = ":8085"
	DefaultRateLimit       = 60
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogService      = "hubctl"
	DefaultOTelExporter    = "grpc"
	DefaultOTelEndpoint    = "localhost:4317"
)

// AppConfig is the effective configuration after defaults, file and
// environment have been merged.
type AppConfig struct {
	Hub        HubConfig
	Trigger    TriggerConfig
	Server     ServerConfig
	Telemetry  TelemetryConfig
	LogLevel   string
	LogService string
	Version    string
}

// HubConfig addresses the hub and bounds the session.
type HubConfig struct {
	Host           string
	Port           int
	Domain         string
	ReplyTimeout   time.Duration
	CommandTimeout time.Duration
	DialTimeout    time.Duration
	// Device is the activity started by the command; -1 powers off.
	Device int
}

// TriggerConfig controls idle-triggered power-off.
type TriggerConfig struct {
	Enabled bool
	// Delay between the idle event and the power-off.
	Delay time.Duration
	// RunsPerHour caps scheduled sessions.
	RunsPerHour int
	// RequireNetwork waits for a non-loopback interface before running.
	RequireNetwork bool
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Listen string
	// RateLimit is the number of API requests allowed per client and minute.
	RateLimit       int
	ShutdownTimeout time.Duration
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		Hub: HubConfig{
			Port:           DefaultHubPort,
			Domain:         DefaultHubDomain,
			ReplyTimeout:   DefaultReplyTimeout,
			CommandTimeout: DefaultCommandTimeout,
			DialTimeout:    DefaultDialTimeout,
			Device:         DefaultDevice,
		},
		Trigger: TriggerConfig{
			Enabled:        true,
			Delay:          DefaultTriggerDelay,
			RunsPerHour:    DefaultRunsPerHour,
			RequireNetwork: true,
		},
		Server: ServerConfig{
			Listen:          DefaultListen,
			RateLimit:       DefaultRateLimit,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultOTelExporter,
			Endpoint:     DefaultOTelEndpoint,
			SamplingRate: 1.0,
			Environment:  "production",
		},
		LogLevel:   DefaultLogLevel,
		LogService: DefaultLogService,
	}
}

// FileConfig is the YAML file layout. Pointer fields distinguish an absent
// key from a zero value.
type FileConfig struct {
	Hub       *FileHub       `yaml:"hub"`
	Trigger   *FileTrigger   `yaml:"trigger"`
	Server    *FileServer    `yaml:"server"`
	Telemetry *FileTelemetry `yaml:"telemetry"`
	LogLevel  *string        `yaml:"logLevel"`
}

// FileHub is the hub section of the file.
type FileHub struct {
	Host           *string        `yaml:"host"`
	Port           *int           `yaml:"port"`
	Domain         *string        `yaml:"domain"`
	ReplyTimeout   *time.Duration `yaml:"replyTimeout"`
	CommandTimeout *time.Duration `yaml:"commandTimeout"`
	DialTimeout    *time.Duration `yaml:"dialTimeout"`
	Device         *int           `yaml:"device"`
}

// FileTrigger is the trigger section of the file.
type FileTrigger struct {
	Enabled        *bool          `yaml:"enabled"`
	Delay          *time.Duration `yaml:"delay"`
	RunsPerHour    *int           `yaml:"runsPerHour"`
	RequireNetwork *bool          `yaml:"requireNetwork"`
}

// FileServer is the server section of the file.
type FileServer struct {
	Listen          *string        `yaml:"listen"`
	RateLimit       *int           `yaml:"rateLimit"`
	ShutdownTimeout *time.Duration `yaml:"shutdownTimeout"`
}

// FileTelemetry is the telemetry section of the file.
type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled"`
	Exporter     *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	SamplingRate *float64 `yaml:"samplingRate"`
	Environment  *string  `yaml:"environment"`
}
