// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package auth resolves the owner identity of each request.
//
// Two modes are supported. In "jwt" mode the owner is the subject of an
// HS256 bearer token. In "none" mode the owner is read from the X-Owner-ID
// header, which is only accepted outside production.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/waymark/internal/logging"
)

// Authentication errors
var (
	// ErrNoCredentials is returned when the request carries no credentials.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials is returned when credentials fail verification.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials is returned when a token has expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Mode names an authentication strategy.
type Mode string

const (
	ModeJWT  Mode = "jwt"
	ModeNone Mode = "none"
)

// Subject is the authenticated caller.
type Subject struct {
	OwnerID string
	Mode    Mode
}

// Authenticator extracts and verifies the caller of an HTTP request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Subject, error)
	Name() string
}

type subjectKey struct{}

// ContextWithSubject stores the subject and its owner id in ctx.
func ContextWithSubject(ctx context.Context, s *Subject) context.Context {
	ctx = context.WithValue(ctx, subjectKey{}, s)
	return logging.ContextWithOwnerID(ctx, s.OwnerID)
}

// SubjectFromContext returns the subject stored by the middleware, if any.
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(*Subject)
	return s, ok && s != nil
}

// OwnerID returns the authenticated owner id or "".
func OwnerID(ctx context.Context) string {
	if s, ok := SubjectFromContext(ctx); ok {
		return s.OwnerID
	}
	return ""
}

// queryCredential returns the named query parameter on websocket upgrade
// requests. Browsers cannot set headers on an upgrade, so only that request
// may carry credentials in the URL.
func queryCredential(r *http.Request, param string) string {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return ""
	}
	return r.URL.Query().Get(param)
}
