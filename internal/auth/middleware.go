// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
)

// Middleware enforces authentication on protected routes.
type Middleware struct {
	authenticator Authenticator
}

// NewMiddleware wraps an authenticator.
func NewMiddleware(a Authenticator) *Middleware {
	return &Middleware{authenticator: a}
}

// NewFromConfig builds the middleware selected by AUTH_MODE.
func NewFromConfig(cfg *config.SecurityConfig) (*Middleware, error) {
	switch Mode(cfg.AuthMode) {
	case ModeJWT:
		manager, err := NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		return NewMiddleware(NewJWTAuthenticator(manager)), nil
	case ModeNone:
		logging.Warn().Msg("AUTH_MODE=none: trusting X-Owner-ID header, do not use in production")
		return NewMiddleware(NewHeaderAuthenticator()), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
}

// RequireOwner rejects unauthenticated requests with 401 and stores the
// subject in the request context otherwise.
func (m *Middleware) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.authenticator.Authenticate(r.Context(), r)
		if err != nil {
			metrics.RecordAuth(m.authenticator.Name(), authOutcome(err))
			m.handleAuthError(w, r, err)
			return
		}
		metrics.RecordAuth(m.authenticator.Name(), "success")
		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
	})
}

func authOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return "missing"
	case errors.Is(err, ErrExpiredCredentials):
		return "expired"
	default:
		return "invalid"
	}
}

func (m *Middleware) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")

	message := "authentication failed"
	switch {
	case errors.Is(err, ErrNoCredentials):
		message = "authentication required"
		if m.authenticator.Name() == string(ModeJWT) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="waymark"`)
		}
	case errors.Is(err, ErrInvalidCredentials):
		message = "invalid credentials"
	case errors.Is(err, ErrExpiredCredentials):
		message = "credentials expired"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	body := models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: "UNAUTHORIZED", Message: message},
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		logging.Error().Err(encErr).Msg("Failed to encode auth error")
	}
}
