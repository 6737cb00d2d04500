// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package mqttingest feeds device location reports published over MQTT into
// the engine. Devices publish JSON to <prefix>/<owner_id>; the last topic
// level names the owner.
package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/ingest"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/validation"
)

// Source labels MQTT updates in metrics.
const Source = "mqtt"

// ErrBadTopic is returned for topics that do not name an owner.
var ErrBadTopic = errors.New("topic does not name an owner")

// Updater records a location sample.
type Updater interface {
	UpdateLocation(ctx context.Context, source string, s *models.LocationSample) error
}

// Config holds broker connection settings.
type Config struct {
	BrokerURL      string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// ConfigFrom maps the mqtt config section.
func ConfigFrom(c *config.MQTTConfig) Config {
	return Config{
		BrokerURL:      c.BrokerURL,
		ClientID:       c.ClientID,
		TopicPrefix:    strings.TrimSuffix(c.TopicPrefix, "/"),
		QoS:            c.QoS,
		ConnectTimeout: 10 * time.Second,
	}
}

// Subscriber is a suture service that owns one MQTT client connection.
type Subscriber struct {
	cfg     Config
	updater Updater
	logger  zerolog.Logger

	// newClient is replaced in tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewSubscriber creates a subscriber. Nothing connects until Serve.
func NewSubscriber(cfg Config, updater Updater) *Subscriber {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Subscriber{
		cfg:       cfg,
		updater:   updater,
		logger:    logging.WithComponent("mqtt-ingest"),
		newClient: mqtt.NewClient,
	}
}

// Topic is the subscription filter, one level below the prefix.
func (s *Subscriber) Topic() string {
	return s.cfg.TopicPrefix + "/+"
}

// Serve connects, subscribes and blocks until ctx is canceled. A connect
// failure is returned so the supervisor restarts the service with backoff.
func (s *Subscriber) Serve(ctx context.Context) error {
	handler := s.messageHandler(ctx)

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Subscriptions do not survive a reconnect with a clean session.
			token := c.Subscribe(s.Topic(), s.cfg.QoS, handler)
			if token.WaitTimeout(s.cfg.ConnectTimeout) && token.Error() != nil {
				s.logger.Error().Err(token.Error()).Str("topic", s.Topic()).Msg("MQTT subscribe failed")
				return
			}
			s.logger.Info().Str("topic", s.Topic()).Msg("MQTT subscribed")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
		})

	client := s.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt connect to %s: timed out after %s", s.cfg.BrokerURL, s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.BrokerURL, err)
	}
	s.logger.Info().Str("broker", s.cfg.BrokerURL).Str("client_id", s.cfg.ClientID).Msg("MQTT connected")

	<-ctx.Done()
	client.Disconnect(250)
	s.logger.Info().Msg("MQTT disconnected")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *Subscriber) String() string {
	return "mqtt-ingest"
}

func (s *Subscriber) messageHandler(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		err := s.HandleMessage(ctx, msg.Topic(), msg.Payload())
		switch {
		case err == nil:
		case errors.Is(err, ingest.ErrRateLimited):
			s.logger.Debug().Str("topic", msg.Topic()).Msg("MQTT location update rate limited")
		default:
			s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("MQTT location update rejected")
		}
	}
}

// HandleMessage decodes one report and forwards it to the updater.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	owner, err := s.ownerFromTopic(topic)
	if err != nil {
		return err
	}

	var req models.LocationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return verr
	}

	sample := &models.LocationSample{
		OwnerID:    owner,
		Lat:        *req.Lat,
		Lng:        *req.Lng,
		Accuracy:   req.Accuracy,
		SpeedMps:   req.SpeedMps,
		HeadingDeg: req.HeadingDeg,
	}
	return s.updater.UpdateLocation(logging.ContextWithOwnerID(ctx, owner), Source, sample)
}

func (s *Subscriber) ownerFromTopic(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, s.cfg.TopicPrefix+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	if !validation.ValidOwnerID(rest) {
		return "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	return rest, nil
}
