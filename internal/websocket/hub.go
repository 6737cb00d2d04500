// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package websocket pushes invalidation notices to connected map clients.
//
// Each client belongs to one owner. When a reservation transition changes
// what an owner should see, the engine asks the hub to tell that owner's
// sockets to refetch their nodes; other owners are not notified.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeNodesInvalidated = "nodes_invalidated"
	MessageTypePing             = "ping"
	MessageTypePong             = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InvalidationData is the payload of a nodes_invalidated message.
type InvalidationData struct {
	Reason    string `json:"reason"`
	NodeID    string `json:"node_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// delivery is a message addressed to one owner's clients.
type delivery struct {
	ownerID string
	message Message
}

// Hub maintains the set of active clients and routes messages to the
// clients of one owner.
type Hub struct {
	clients    map[*Client]bool
	outbound   chan delivery
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		outbound:   make(chan delivery, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx ends, then closes every client.
// It is the hub's suture.Service entry point.
//
// Shutdown is checked first, then client lifecycle events, then outbound
// messages, so a client registered before a send always receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case d := <-h.outbound:
			h.deliver(d)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture logging.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	logging.Debug().Str("owner_id", client.ownerID).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))
	logging.Debug().Str("owner_id", client.ownerID).Int("total_clients", n).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs why. ctx.Err() is not
// logged as an error: cancellation is the normal shutdown path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// deliver sends a message to the owner's clients in ID order. Clients whose
// buffers are full are dropped.
func (h *Hub) deliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Client
	for client := range h.clients {
		if client.ownerID == d.ownerID {
			targets = append(targets, client)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].id < targets[j].id
	})

	for _, client := range targets {
		select {
		case client.send <- d.message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}

// SendToOwner queues a message for ownerID's clients. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) SendToOwner(ownerID, messageType string, data interface{}) {
	select {
	case h.outbound <- delivery{ownerID: ownerID, message: Message{Type: messageType, Data: data}}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("websocket outbound queue full, dropping message")
	}
}

// InvalidateOwner tells ownerID's clients to refetch their nodes.
func (h *Hub) InvalidateOwner(ownerID, reason, nodeID string) {
	h.SendToOwner(ownerID, MessageTypeNodesInvalidated, InvalidationData{
		Reason:    reason,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
