// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/waymark/config.yaml",
	"/etc/waymark/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Driver:       "duckdb",
			Path:         "/data/waymark.duckdb",
			MaxOpenConns: 0,
		},
		Samples: SamplesConfig{
			Backend:       "sql",
			BadgerPath:    "",
			RatePerSecond: 1,
			Burst:         5,
		},
		Policy: PolicyConfig{
			File:     "",
			Scenario: "",
		},
		Maintenance: MaintenanceConfig{
			Enabled:           true,
			ExpireInterval:    time.Minute,
			RetentionInterval: time.Hour,
			SweepTimeout:      30 * time.Second,
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			JWTSecret:       "",
			JWTIssuer:       "",
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			TopicPrefix:    "waymark",
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "tcp://127.0.0.1:1883",
			ClientID:    "waymark-ingest",
			TopicPrefix: "waymark/location",
			QoS:         1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources.
//
// Configuration Loading Order (later sources override earlier ones):
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Environment variables (highest priority)
	// HTTP_PORT -> server.port, DB_DRIVER -> database.driver
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"db_driver":         "database.driver",
	"db_path":           "database.path",
	"db_max_open_conns": "database.max_open_conns",

	"samples_backend":         "samples.backend",
	"samples_badger_path":     "samples.badger_path",
	"samples_rate_per_second": "samples.rate_per_second",
	"samples_burst":           "samples.burst",

	"policy_file":     "policy.file",
	"policy_scenario": "policy.scenario",

	"maintenance_enabled":            "maintenance.enabled",
	"maintenance_expire_interval":    "maintenance.expire_interval",
	"maintenance_retention_interval": "maintenance.retention_interval",
	"maintenance_sweep_timeout":      "maintenance.sweep_timeout",

	"auth_mode":          "security.auth_mode",
	"jwt_secret":         "security.jwt_secret",
	"jwt_issuer":         "security.jwt_issuer",
	"rate_limit_reqs":    "security.rate_limit_reqs",
	"rate_limit_window":  "security.rate_limit_window",
	"disable_rate_limit": "security.rate_limit_disabled",
	"cors_origins":       "security.cors_origins",

	"nats_enabled":       "nats.enabled",
	"nats_url":           "nats.url",
	"nats_embedded":      "nats.embedded_server",
	"nats_embedded_host": "nats.embedded_host",
	"nats_embedded_port": "nats.embedded_port",
	"nats_topic_prefix":  "nats.topic_prefix",

	"mqtt_enabled":      "mqtt.enabled",
	"mqtt_broker_url":   "mqtt.broker_url",
	"mqtt_client_id":    "mqtt.client_id",
	"mqtt_topic_prefix": "mqtt.topic_prefix",
	"mqtt_qos":          "mqtt.qos",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return an empty key and are skipped, so unrelated
// environment never leaks into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
