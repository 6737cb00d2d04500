// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waymark/internal/models"
)

var at = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNodeEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *NodeEvent)
		wantErr string
	}{
		{"valid", func(e *NodeEvent) {}, ""},
		{"missing owner", func(e *NodeEvent) { e.OwnerID = "" }, "owner_id"},
		{"missing node", func(e *NodeEvent) { e.NodeID = "" }, "node_id"},
		{"unknown kind", func(e *NodeEvent) { e.Kind = "node.teleported" }, "unknown event kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewNodeEvent(KindReserved, "alice", "n1", "s1", models.StatusReserved, at)
			tt.mutate(e)
			err := e.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("waymark", KindCollected); got != "waymark.node.collected" {
		t.Errorf("Topic() = %q", got)
	}
	if got := Topic("", KindArrived); got != "node.arrived" {
		t.Errorf("Topic() without prefix = %q", got)
	}
}

func TestPublisher_GoChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := NewGoChannel()
	msgs, err := ch.Subscribe(ctx, "waymark.node.collected")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	p := NewPublisher(ch, DefaultConfig())
	defer p.Close()

	e := NewNodeEvent(KindCollected, "alice", "n1", "s1", models.StatusCollected, at)
	e.Quality = models.QualityExcellent
	e.Rarity = models.RarityLegendary
	if err := p.PublishEvent(ctx, e); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		got, err := Unmarshal(msg.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if got.EventID != e.EventID || got.Rarity != models.RarityLegendary || !got.OccurredAt.Equal(at) {
			t.Errorf("received %+v, want %+v", got, e)
		}
		if msg.Metadata.Get("owner_id") != "alice" {
			t.Errorf("owner_id metadata = %q", msg.Metadata.Get("owner_id"))
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

// failingPublisher always fails.
type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(topic string, msgs ...*message.Message) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestPublisher_BreakerOpens(t *testing.T) {
	ctx := context.Background()
	fp := &failingPublisher{}
	p := NewPublisher(fp, Config{TopicPrefix: "waymark", FailureThreshold: 2, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		e := NewNodeEvent(KindArrived, "alice", "n1", "s1", models.StatusArrived, at)
		if err := p.PublishEvent(ctx, e); err == nil {
			t.Fatal("PublishEvent() error = nil, want broker error")
		}
	}

	e := NewNodeEvent(KindArrived, "alice", "n1", "s1", models.StatusArrived, at)
	err := p.PublishEvent(ctx, e)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("PublishEvent() error = %v, want ErrOpenState", err)
	}
	if fp.calls != 2 {
		t.Errorf("underlying publisher called %d times, want 2", fp.calls)
	}
	if p.BreakerState() != "open" {
		t.Errorf("BreakerState() = %q, want open", p.BreakerState())
	}
}

func TestPublisher_Closed(t *testing.T) {
	p := NewPublisher(NewGoChannel(), DefaultConfig())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	e := NewNodeEvent(KindReserved, "alice", "n1", "s1", models.StatusReserved, at)
	if err := p.PublishEvent(context.Background(), e); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("PublishEvent() after Close error = %v, want ErrPublisherClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestPublisher_InvalidEvent(t *testing.T) {
	p := NewPublisher(&failingPublisher{}, DefaultConfig())
	if err := p.PublishEvent(context.Background(), &NodeEvent{Kind: KindReserved}); err == nil {
		t.Error("PublishEvent() with invalid event error = nil")
	}
}

func TestEmbeddedServer(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a NATS server")
	}
	srv, err := NewEmbeddedServer(ServerConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	if !srv.IsRunning() || !strings.HasPrefix(srv.ClientURL(), "nats://") {
		t.Fatalf("server not running at %q", srv.ClientURL())
	}

	pub, err := NewNATSPublisher(NATSConfig{URL: srv.ClientURL()})
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	p := NewPublisher(pub, DefaultConfig())
	e := NewNodeEvent(KindReserved, "alice", "n1", "s1", models.StatusReserved, at)
	if err := p.PublishEvent(context.Background(), e); err != nil {
		t.Errorf("PublishEvent() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
