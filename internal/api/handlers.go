// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package api

import (
	"context"
	"time"

	"github.com/tomtom215/waymark/internal/models"
	ws "github.com/tomtom215/waymark/internal/websocket"
)

// Engine is the set of inbound operations the handlers expose.
type Engine interface {
	UpdateLocation(ctx context.Context, source string, s *models.LocationSample) error
	QueryNodes(ctx context.Context, ownerID string, lat, lng float64) (*models.MapPayload, error)
	Reserve(ctx context.Context, ownerID, nodeID string) (*models.ReservationResult, error)
	Arrive(ctx context.Context, ownerID, reservationID string, lat, lng *float64) (*models.ArrivalResult, error)
	Collect(ctx context.Context, ownerID, id string) (*models.CollectResult, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	engine Engine
	db     Pinger
	wsHub  *ws.Hub

	allowedOrigins []string
	version        string
	startTime      time.Time
	now            func() time.Time
}

// HandlerOptions configures NewHandler. DB and Hub may be nil.
type HandlerOptions struct {
	DB             Pinger
	Hub            *ws.Hub
	AllowedOrigins []string
	Version        string
	Now            func() time.Time
}

// NewHandler creates the handler set over engine.
func NewHandler(engine Engine, opts HandlerOptions) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		engine:         engine,
		db:             opts.DB,
		wsHub:          opts.Hub,
		allowedOrigins: opts.AllowedOrigins,
		version:        opts.Version,
		startTime:      opts.Now(),
		now:            opts.Now,
	}
}
