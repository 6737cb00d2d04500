// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package config

import (
	"time"
)

// Config holds all process configuration loaded from defaults, an optional
// YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any mapped setting
//
// The spawning/reservation tunables are not part of Config; Policy only
// names the policy file and scenario, which internal/policy resolves.
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Samples     SamplesConfig     `koanf:"samples"`
	Policy      PolicyConfig      `koanf:"policy"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
	Security    SecurityConfig    `koanf:"security"`
	NATS        NATSConfig        `koanf:"nats"`
	MQTT        MQTTConfig        `koanf:"mqtt"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // "development", "staging" or "production"
}

// DatabaseConfig selects and tunes the SQL store.
type DatabaseConfig struct {
	// Driver is "duckdb" (default) or "sqlite".
	Driver string `koanf:"driver"`

	// Path is the database file. ":memory:" opens a throwaway in-memory database.
	Path string `koanf:"path"`

	// MaxOpenConns caps the pool for DuckDB. SQLite always uses one connection.
	MaxOpenConns int `koanf:"max_open_conns"`
}

// SamplesConfig controls location ingestion.
type SamplesConfig struct {
	// Backend is "sql" (same database as nodes) or "badger".
	Backend string `koanf:"backend"`

	// BadgerPath is the BadgerDB directory. Empty runs Badger in memory.
	BadgerPath string `koanf:"badger_path"`

	// RatePerSecond and Burst throttle location updates per owner.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// PolicyConfig names the policy layers resolved at startup.
type PolicyConfig struct {
	File     string `koanf:"file"`
	Scenario string `koanf:"scenario"`
}

// MaintenanceConfig holds the background sweep cadence.
type MaintenanceConfig struct {
	Enabled           bool          `koanf:"enabled"`
	ExpireInterval    time.Duration `koanf:"expire_interval"`
	RetentionInterval time.Duration `koanf:"retention_interval"`
	SweepTimeout      time.Duration `koanf:"sweep_timeout"`
}

// SecurityConfig holds identity and request limiting settings
type SecurityConfig struct {
	// AuthMode is "jwt" (verify bearer tokens) or "none" (trust X-Owner-ID, development only).
	AuthMode  string `koanf:"auth_mode"`
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// NATSConfig holds outbound node event settings.
//
// When disabled, events go to an in-process channel and are only observed by
// local subscribers.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts a NATS server inside the process.
	EmbeddedServer bool   `koanf:"embedded_server"`
	EmbeddedHost   string `koanf:"embedded_host"`
	EmbeddedPort   int    `koanf:"embedded_port"`

	// TopicPrefix is prepended to every event topic.
	TopicPrefix string `koanf:"topic_prefix"`
}

// MQTTConfig holds the optional device ingestion subscriber.
type MQTTConfig struct {
	Enabled     bool   `koanf:"enabled"`
	BrokerURL   string `koanf:"broker_url"`
	ClientID    string `koanf:"client_id"`
	TopicPrefix string `koanf:"topic_prefix"`
	QoS         byte   `koanf:"qos"`
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
