// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/waymark/internal/api"
	"github.com/tomtom215/waymark/internal/auth"
	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/engine"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/maintenance"
	"github.com/tomtom215/waymark/internal/mqttingest"
	"github.com/tomtom215/waymark/internal/policy"
	"github.com/tomtom215/waymark/internal/supervisor"
	"github.com/tomtom215/waymark/internal/supervisor/services"
	ws "github.com/tomtom215/waymark/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// limiterIdle is how long an owner's ingest throttle survives without updates.
const limiterIdle = 30 * time.Minute

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "waymark",
		Version:   version,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_driver", cfg.Database.Driver).
		Str("samples_backend", cfg.Samples.Backend).
		Str("auth_mode", cfg.Security.AuthMode).
		Msg("Starting Waymark with supervisor tree")

	pol, err := policy.Resolve(policy.Options{File: cfg.Policy.File, Scenario: cfg.Policy.Scenario})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to resolve spawn policy")
	}
	logging.Info().
		Str("scenario", pol.Scenario).
		Str("policy_file", cfg.Policy.File).
		Msg("Spawn policy resolved")

	store, err := initStorage(cfg, pol)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.close()

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())

	publisher, err := initEvents(&cfg.NATS, tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize node events")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	wsHub := ws.NewHub()
	mustAdd(tree, supervisor.LayerMessaging, wsHub)

	eng := engine.New(store.db, store.samples, pol, engine.Options{
		Publisher:     publisher,
		Notifier:      wsHub,
		RatePerSecond: cfg.Samples.RatePerSecond,
		Burst:         cfg.Samples.Burst,
		LimiterIdle:   limiterIdle,
	})

	if cfg.Maintenance.Enabled {
		scheduler := maintenance.NewScheduler(store.db, store.samples, maintenance.Config{
			ExpireInterval:    cfg.Maintenance.ExpireInterval,
			RetentionInterval: cfg.Maintenance.RetentionInterval,
			SweepTimeout:      cfg.Maintenance.SweepTimeout,
			SampleRetention:   pol.Retention.Samples,
			NodeRetention:     pol.Retention.Nodes,
			AfterRetention: func() {
				if n := eng.PruneLimiters(); n > 0 {
					logging.Debug().Int("pruned", n).Msg("Pruned idle ingest limiters")
				}
			},
		})
		mustAdd(tree, supervisor.LayerData, services.NewMaintenanceService(scheduler))
		logging.Info().
			Dur("expire_interval", cfg.Maintenance.ExpireInterval).
			Dur("retention_interval", cfg.Maintenance.RetentionInterval).
			Msg("Maintenance sweeps enabled")
	} else {
		logging.Warn().Msg("Maintenance sweeps disabled (MAINTENANCE_ENABLED=false)")
	}

	if cfg.MQTT.Enabled {
		subscriber := mqttingest.NewSubscriber(mqttingest.ConfigFrom(&cfg.MQTT), eng)
		mustAdd(tree, supervisor.LayerMessaging, subscriber)
		logging.Info().
			Str("broker", cfg.MQTT.BrokerURL).
			Str("topic", subscriber.Topic()).
			Msg("MQTT location ingest enabled")
	}

	authMiddleware, err := auth.NewFromConfig(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authentication")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	handler := api.NewHandler(eng, api.HandlerOptions{
		DB:             store.db,
		Hub:            wsHub,
		AllowedOrigins: cfg.Security.CORSOrigins,
		Version:        version,
	})

	chiCfg := api.DefaultChiMiddlewareConfig()
	chiCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	chiCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	chiCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	chiCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled

	router := api.NewRouter(handler, authMiddleware, chiCfg)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	mustAdd(tree, supervisor.LayerAPI, services.NewHTTPServerService(server, server.Addr, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", server.Addr).
		Strs("data", tree.Services(supervisor.LayerData)).
		Strs("messaging", tree.Services(supervisor.LayerMessaging)).
		Strs("api", tree.Services(supervisor.LayerAPI)).
		Msg("Supervisor tree starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	reportUnstopped(tree)
	logging.Info().Msg("Waymark stopped")
}

// mustAdd registers svc or exits. Layers are fixed, so a failure is a
// programming error.
func mustAdd(tree *supervisor.SupervisorTree, layer supervisor.Layer, svc suture.Service) {
	if _, err := tree.Add(layer, svc); err != nil {
		logging.Fatal().Err(err).Str("service", fmt.Sprint(svc)).Msg("Failed to register service")
	}
}

// reportUnstopped logs services that ignored shutdown within the timeout.
func reportUnstopped(tree *supervisor.SupervisorTree) {
	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		logging.Warn().Err(err).Msg("Could not collect unstopped service report")
		return
	}
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service did not stop before shutdown timeout")
	}
}
