// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/waymark/internal/validation"
)

// TokenQueryParam carries the token on websocket upgrades in jwt mode.
const TokenQueryParam = "token"

// JWTAuthenticator resolves the owner from a bearer token issued by a
// JWTManager. The token's subject is the owner id.
type JWTAuthenticator struct {
	manager *JWTManager
}

// NewJWTAuthenticator creates a JWT authenticator.
func NewJWTAuthenticator(manager *JWTManager) *JWTAuthenticator {
	return &JWTAuthenticator{manager: manager}
}

// Authenticate reads "Authorization: Bearer <token>", or the token query
// parameter on a websocket upgrade. Any other Authorization scheme is
// treated as no credentials.
func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Subject, error) {
	raw, ok := bearerToken(r)
	if !ok {
		raw = queryCredential(r, TokenQueryParam)
	}
	if raw == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(raw)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredCredentials
	case err != nil, !validation.ValidOwnerID(claims.Subject):
		return nil, ErrInvalidCredentials
	}
	return &Subject{OwnerID: claims.Subject, Mode: ModeJWT}, nil
}

// Name returns the authenticator name.
func (a *JWTAuthenticator) Name() string {
	return string(ModeJWT)
}

// bearerToken reports ok when an Authorization header is present, even if
// its scheme is not Bearer; the query fallback is skipped in that case.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}
