// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package supervisor runs the long-lived services under a suture tree.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer names a child supervisor of the root.
type Layer string

// Layers in start order. A crash loop in one layer does not restart the others.
const (
	// LayerData owns the maintenance sweeps.
	LayerData Layer = "data-layer"
	// LayerMessaging owns the websocket hub, MQTT ingest and embedded NATS.
	LayerMessaging Layer = "messaging-layer"
	// LayerAPI owns the HTTP server.
	LayerAPI Layer = "api-layer"
)

var layerOrder = []Layer{LayerData, LayerMessaging, LayerAPI}

// TreeConfig holds restart and shutdown tuning.
type TreeConfig struct {
	// FailureThreshold failures, decaying at FailureDecay per second, put a
	// supervisor into FailureBackoff.
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration

	// MessagingBackoff overrides FailureBackoff for the messaging layer,
	// whose services fail while a broker is unreachable.
	MessagingBackoff time.Duration

	// ShutdownTimeout bounds how long each service gets to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns the production defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		MessagingBackoff: 30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	def := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = def.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = def.FailureBackoff
	}
	if c.MessagingBackoff <= 0 {
		c.MessagingBackoff = c.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(backoff time.Duration) suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   backoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the root "waymark" supervisor with one child per Layer.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	config TreeConfig

	mu    sync.Mutex
	names map[Layer][]string
}

// NewSupervisorTree builds the tree. Supervisor events are logged through
// logger via sutureslog.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) *SupervisorTree {
	config = config.withDefaults()

	rootSpec := config.spec(config.FailureBackoff)
	handler := &sutureslog.Handler{Logger: logger}
	rootSpec.EventHook = handler.MustHook()

	t := &SupervisorTree{
		root:   suture.New("waymark", rootSpec),
		layers: make(map[Layer]*suture.Supervisor, len(layerOrder)),
		config: config,
		names:  make(map[Layer][]string, len(layerOrder)),
	}

	for _, layer := range layerOrder {
		backoff := config.FailureBackoff
		if layer == LayerMessaging {
			backoff = config.MessagingBackoff
		}
		// Children inherit the root's EventHook when added.
		child := suture.New(string(layer), config.spec(backoff))
		t.layers[layer] = child
		t.root.Add(child)
	}
	return t
}

// Add registers svc under layer. Services added after Serve starts are
// started immediately.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) (suture.ServiceToken, error) {
	sup, ok := t.layers[layer]
	if !ok {
		return suture.ServiceToken{}, fmt.Errorf("unknown supervisor layer %q", layer)
	}

	t.mu.Lock()
	t.names[layer] = append(t.names[layer], serviceName(svc))
	t.mu.Unlock()

	return sup.Add(svc), nil
}

// Services lists the names registered under layer in registration order.
func (t *SupervisorTree) Services(layer Layer) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names[layer]...)
}

func serviceName(svc suture.Service) string {
	if s, ok := svc.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the tree stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
