// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/engine"
	"github.com/tomtom215/waymark/internal/ingest"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/reservation"
	"github.com/tomtom215/waymark/internal/validation"
)

// sanitizeLogValue escapes control characters so client input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func metadata(r *http.Request, start time.Time) models.Metadata {
	md := models.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	if !start.IsZero() {
		md.QueryTimeMS = time.Since(start).Milliseconds()
	}
	return md
}

// respondJSON sends a JSON response with proper headers. Node state is
// per-player and changes on every call, so nothing is cacheable.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, start time.Time, data interface{}) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: metadata(r, start),
	})
}

// respondError sends an error response. err is logged, never returned to
// the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	respondAPIError(w, r, status, &models.APIError{Code: code, Message: message}, err)
}

func respondAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Str("code", apiErr.Code).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: metadata(r, time.Time{}),
		Error:    apiErr,
	})
}

// respondEngineError maps an engine error to its status and code.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var tooFar *reservation.TooFarError
	if errors.As(err, &tooFar) {
		respondAPIError(w, r, http.StatusBadRequest, &models.APIError{
			Code:    "TOO_FAR",
			Message: tooFar.Error(),
			Details: map[string]interface{}{
				"distance_m": tooFar.DistanceM,
				"limit_m":    tooFar.LimitM,
			},
		}, nil)
		return
	}

	if code := reservation.Code(err); code != "" {
		respondError(w, r, statusForCode(code), code, err.Error(), nil)
		return
	}

	switch {
	case errors.Is(err, ingest.ErrRateLimited):
		respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil)
	case errors.Is(err, ingest.ErrInvalidSample), errors.Is(err, engine.ErrInvalidLocation):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", err)
	}
}

// statusForCode returns the HTTP status for a state machine rejection.
// Unknown ids are 404. A reservation limit or a lost concurrent write is 409,
// since retrying later can succeed. Every other rejection is 400.
func statusForCode(code string) int {
	switch code {
	case "NODE_NOT_FOUND", "RESERVATION_NOT_FOUND":
		return http.StatusNotFound
	case "RESERVATION_LIMIT", "STATE_CONFLICT":
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// validateRequest validates a struct using go-playground/validator.
// Returns nil if validation passes.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}

	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}
