// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package config loads process configuration for Waymark.

Settings are layered with Koanf v2: built-in defaults, then an optional YAML
file (CONFIG_PATH or config.yaml), then mapped environment variables.

# Environment Variables

HTTP Server:
  - HTTP_PORT, HTTP_HOST, HTTP_TIMEOUT, ENVIRONMENT

Storage:
  - DB_DRIVER: duckdb (default) or sqlite
  - DB_PATH: database file, ":memory:" for a throwaway database
  - SAMPLES_BACKEND: sql (default) or badger
  - SAMPLES_BADGER_PATH, SAMPLES_RATE_PER_SECOND, SAMPLES_BURST

Policy:
  - POLICY_FILE: YAML overlay on the built-in spawning policy
  - POLICY_SCENARIO: named scenario merged over the policy

Security:
  - AUTH_MODE: jwt (default) or none
  - JWT_SECRET: HS256 secret, min 32 chars in jwt mode
  - RATE_LIMIT_REQS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT, CORS_ORIGINS

Messaging:
  - NATS_ENABLED, NATS_URL, NATS_EMBEDDED, NATS_TOPIC_PREFIX
  - MQTT_ENABLED, MQTT_BROKER_URL, MQTT_CLIENT_ID, MQTT_TOPIC_PREFIX, MQTT_QOS

Logging:
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

The spawning tunables themselves live in internal/policy; Config only names
which policy file and scenario to resolve.
*/
package config
