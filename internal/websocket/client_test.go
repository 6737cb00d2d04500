// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveHub upgrades every request into a client for owner on hub.
func serveHub(t *testing.T, hub *Hub, owner string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn, owner)
		hub.Register <- client
		client.Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestNewClient(t *testing.T) {
	hub := NewHub()
	a := NewClient(hub, nil, "alice")
	b := NewClient(hub, nil, "alice")
	if b.ID() <= a.ID() {
		t.Errorf("IDs not increasing: %d then %d", a.ID(), b.ID())
	}
	if a.OwnerID() != "alice" || cap(a.send) == 0 {
		t.Errorf("client = %+v", a)
	}
}

func TestClient_Constants(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be shorter than pongWait %v", pingPeriod, pongWait)
	}
}

func TestClient_ReceivesInvalidation(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub, "alice"))
	waitForCount(t, hub, 1)

	hub.InvalidateOwner("alice", "node.collected", "n9")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string           `json:"type"`
		Data InvalidationData `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != MessageTypeNodesInvalidated || msg.Data.NodeID != "n9" {
		t.Errorf("received %+v", msg)
	}
}

func TestClient_PingPong(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub, "alice"))

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != MessageTypePong {
		t.Errorf("Type = %q, want pong", msg.Type)
	}
}

func TestClient_DisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub, "alice"))
	waitForCount(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitForCount(t, hub, 0)
}
