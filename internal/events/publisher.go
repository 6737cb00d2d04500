// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Config holds publisher settings.
type Config struct {
	// TopicPrefix is prepended to every event kind.
	TopicPrefix string

	// Breaker settings. FailureThreshold consecutive failures open the
	// breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		TopicPrefix:      "waymark",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// NATSConfig holds the connection settings for NewNATSPublisher.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher publishes NodeEvents through a Watermill publisher guarded by a
// circuit breaker.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	prefix         string

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub. The Publisher owns pub and closes it on Close.
func NewPublisher(pub message.Publisher, cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	return &Publisher{
		publisher:      pub,
		circuitBreaker: NewCircuitBreaker("event-publisher", cfg.FailureThreshold, cfg.OpenTimeout),
		prefix:         cfg.TopicPrefix,
	}
}

// NewGoChannel creates an in-process pub/sub. It serves as the publisher
// when NATS is disabled and as the subscriber side in tests.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		NewLoggerAdapter(logging.WithComponent("events")),
	)
}

// NewNATSPublisher connects a core NATS publisher. JetStream is not used:
// node events are notifications, and consumers that need durability read
// the store.
func NewNATSPublisher(cfg NATSConfig) (message.Publisher, error) {
	logger := NewLoggerAdapter(logging.WithComponent("events"))
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("waymark"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// PublishEvent encodes and publishes e on its topic.
func (p *Publisher) PublishEvent(ctx context.Context, e *NodeEvent) error {
	data, err := Marshal(e)
	if err != nil {
		metrics.RecordEventPublish(string(e.Kind), "invalid")
		return err
	}

	msg := message.NewMessage(e.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("kind", string(e.Kind))
	msg.Metadata.Set("owner_id", e.OwnerID)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set("request_id", id)
	}

	err = p.publish(e.Topic(p.prefix), msg)
	switch {
	case err == nil:
		metrics.RecordEventPublish(string(e.Kind), "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEventPublish(string(e.Kind), "breaker_open")
	default:
		metrics.RecordEventPublish(string(e.Kind), "error")
	}
	return err
}

func (p *Publisher) publish(topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// BreakerState reports the circuit breaker state for health checks.
func (p *Publisher) BreakerState() string {
	return p.circuitBreaker.State().String()
}

// Close shuts down the underlying publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// NewCircuitBreaker opens after threshold consecutive failures and probes
// again after timeout.
func NewCircuitBreaker(name string, threshold uint32, timeout time.Duration) *gobreaker.CircuitBreaker[interface{}] {
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}
