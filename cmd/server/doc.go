// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package main is the entry point for the Waymark server.

Waymark spawns collectible nodes around players from their reported
locations and drives each node through reservation, arrival and collection.
The server exposes the engine over a JSON API, pushes invalidations to
connected websocket clients and publishes node lifecycle events.

# Application Architecture

The server runs its long-lived components under a Suture v4 tree:

	RootSupervisor ("waymark")
	├── DataSupervisor ("data-layer")
	│   └── Maintenance scheduler (expire and retention sweeps)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub
	│   ├── MQTT ingest (optional, MQTT_ENABLED=true)
	│   └── Embedded NATS server (optional, NATS_EMBEDDED=true)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Policy: embedded defaults, optional POLICY_FILE and POLICY_SCENARIO
 3. Storage: DuckDB or SQLite, with optional BadgerDB for samples
 4. Events: in-process channel, external NATS or embedded NATS
 5. Engine: spawning, reservation machine and query builder
 6. HTTP Server: Chi router with auth, rate limiting and metrics

# Configuration

Common environment variables:

	HTTP_PORT=8080
	DB_DRIVER=duckdb           # or sqlite
	DB_PATH=/data/waymark.duckdb
	SAMPLES_BACKEND=sql        # or badger
	AUTH_MODE=jwt              # or none (development only)
	JWT_SECRET=...             # 32+ characters
	NATS_ENABLED=false
	MQTT_ENABLED=false

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
server gracefully, then the sweeps, the hub and the messaging services. The
event publisher and the databases are closed last.
*/
package main
