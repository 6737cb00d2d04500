// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	ownerIDKey   contextKey = "owner_id"
)

// GenerateRequestID creates a new unique request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithRequestID returns a new context carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithOwnerID returns a new context carrying the authenticated owner.
func ContextWithOwnerID(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerIDKey, owner)
}

// OwnerIDFromContext retrieves the owner ID from context.
// Returns empty string if not present.
func OwnerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ownerIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with request_id and owner_id added when present.
//
//	logging.Ctx(ctx).Info().Str("node_id", id).Msg("Node reserved")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	if owner := OwnerIDFromContext(ctx); owner != "" {
		logCtx = logCtx.Str("owner_id", owner)
	}
	l := logCtx.Logger()
	return &l
}
