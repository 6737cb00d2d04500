// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"fmt"
	"time"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/supervisor"
)

// initEvents selects the event transport:
//   - NATS disabled: in-process channel
//   - embedded: start a local NATS server and publish to it
//   - otherwise: connect to NATS_URL
//
// The embedded server is added to the messaging layer so it shuts down with
// the tree.
func initEvents(cfg *config.NATSConfig, tree *supervisor.SupervisorTree) (*events.Publisher, error) {
	pubCfg := events.DefaultConfig()
	if cfg.TopicPrefix != "" {
		pubCfg.TopicPrefix = cfg.TopicPrefix
	}

	if !cfg.Enabled {
		logging.Info().Msg("NATS disabled, node events stay in process")
		return events.NewPublisher(events.NewGoChannel(), pubCfg), nil
	}

	url := cfg.URL
	if cfg.EmbeddedServer {
		server, err := events.NewEmbeddedServer(events.ServerConfig{
			Host:         cfg.EmbeddedHost,
			Port:         cfg.EmbeddedPort,
			ReadyTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		if _, err := tree.Add(supervisor.LayerMessaging, server); err != nil {
			return nil, err
		}
		url = server.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	pub, err := events.NewNATSPublisher(events.NATSConfig{URL: url})
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("url", url).
		Str("topic_prefix", pubCfg.TopicPrefix).
		Msg("Publishing node events to NATS")

	return events.NewPublisher(pub, pubCfg), nil
}
