// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/auth"
	"github.com/tomtom215/waymark/internal/models"
)

// maxBodyBytes bounds request bodies; every body here is a few coordinates.
const maxBodyBytes = 4 << 10

// decodeBody decodes an optional JSON body into v. An empty body is not an
// error when optional is true.
func decodeBody(r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// UpdateLocation records a location sample for the caller.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.LocationRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	sample := &models.LocationSample{
		OwnerID:    auth.OwnerID(r.Context()),
		Lat:        *req.Lat,
		Lng:        *req.Lng,
		Accuracy:   req.Accuracy,
		SpeedMps:   req.SpeedMps,
		HeadingDeg: req.HeadingDeg,
	}

	if err := h.engine.UpdateLocation(r.Context(), "api", sample); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, r, start, map[string]interface{}{"recorded": true})
}

// QueryNodes returns the nodes visible to the caller at ?lat=&lng=.
func (h *Handler) QueryNodes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "lat and lng query parameters are required", nil)
		return
	}
	req := models.NodesQuery{Lat: lat, Lng: lng}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	payload, err := h.engine.QueryNodes(r.Context(), auth.OwnerID(r.Context()), req.Lat, req.Lng)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, r, start, payload)
}

// Reserve reserves {nodeID} for the caller.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := h.engine.Reserve(r.Context(), auth.OwnerID(r.Context()), chi.URLParam(r, "nodeID"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, r, start, result)
}

// Arrive marks the caller as arrived at reservation {reservationID}. The
// optional body carries the caller's position for the distance check.
func (h *Handler) Arrive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.ArriveRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	result, err := h.engine.Arrive(r.Context(), auth.OwnerID(r.Context()), chi.URLParam(r, "reservationID"), req.Lat, req.Lng)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, r, start, result)
}

// Collect collects {id}, which is either a reservation id or a node id.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := h.engine.Collect(r.Context(), auth.OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondSuccess(w, r, start, result)
}
