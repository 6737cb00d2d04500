// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package auth

import (
	"context"
	"net/http"

	"github.com/tomtom215/waymark/internal/validation"
)

// OwnerHeader carries the owner id when AUTH_MODE=none.
const OwnerHeader = "X-Owner-ID"

// HeaderAuthenticator trusts the owner id supplied by the client.
// Development and testing only.
type HeaderAuthenticator struct{}

// NewHeaderAuthenticator creates a header authenticator.
func NewHeaderAuthenticator() *HeaderAuthenticator {
	return &HeaderAuthenticator{}
}

// Authenticate reads the owner id from the X-Owner-ID header, falling back to
// the owner_id query parameter for websocket upgrades.
func (a *HeaderAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Subject, error) {
	owner := r.Header.Get(OwnerHeader)
	if owner == "" {
		owner = queryCredential(r, "owner_id")
	}
	if owner == "" {
		return nil, ErrNoCredentials
	}
	if !validation.ValidOwnerID(owner) {
		return nil, ErrInvalidCredentials
	}
	return &Subject{OwnerID: owner, Mode: ModeNone}, nil
}

// Name returns the authenticator name.
func (a *HeaderAuthenticator) Name() string {
	return string(ModeNone)
}
