// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/waymark/internal/logging"
)

// minJWTSecretLength is the shortest HS256 secret accepted.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateSamples(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "duckdb", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be duckdb or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 0")
	}
	return nil
}

func (c *Config) validateSamples() error {
	switch c.Samples.Backend {
	case "sql", "badger":
	default:
		return fmt.Errorf("SAMPLES_BACKEND must be sql or badger, got %q", c.Samples.Backend)
	}
	if c.Samples.RatePerSecond <= 0 {
		return fmt.Errorf("SAMPLES_RATE_PER_SECOND must be positive")
	}
	if c.Samples.Burst < 1 {
		return fmt.Errorf("SAMPLES_BURST must be >= 1")
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	if !c.Maintenance.Enabled {
		return nil
	}
	if c.Maintenance.ExpireInterval <= 0 || c.Maintenance.RetentionInterval <= 0 {
		return fmt.Errorf("maintenance intervals must be positive")
	}
	if c.Maintenance.SweepTimeout <= 0 {
		return fmt.Errorf("MAINTENANCE_SWEEP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters when AUTH_MODE=jwt", minJWTSecretLength)
		}
	case "none":
		if c.Server.Environment == "production" {
			return fmt.Errorf("AUTH_MODE=none is not allowed in production")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or none, got %q", c.Security.AuthMode)
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQS must be >= 1")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.EmbeddedPort < 1 || c.NATS.EmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535")
		}
		return nil
	}
	u, err := url.Parse(c.NATS.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("NATS_URL is invalid: %q", c.NATS.URL)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if !c.MQTT.Enabled {
		return nil
	}
	u, err := url.Parse(c.MQTT.BrokerURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("MQTT_BROKER_URL is invalid: %q", c.MQTT.BrokerURL)
	}
	if c.MQTT.ClientID == "" {
		return fmt.Errorf("MQTT_CLIENT_ID is required when MQTT_ENABLED=true")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		return fmt.Errorf("MQTT_TOPIC_PREFIX must not contain wildcards")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL is invalid: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
