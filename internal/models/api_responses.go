// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package models

import (
	"time"
)

// APIResponse is the envelope for every HTTP response.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "TOO_FAR",
//	    "message": "player is 61.2m from the node, limit 50m",
//	    "details": {"distance_m": 61.2, "limit_m": 50}
//	  },
//	  "metadata": {"timestamp": "2026-03-10T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError is a machine-readable error code plus a human message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// LocationRequest is the body of POST /api/v1/location.
type LocationRequest struct {
	Lat        *float64 `json:"lat" validate:"required,latitude"`
	Lng        *float64 `json:"lng" validate:"required,longitude"`
	Accuracy   float64  `json:"accuracy" validate:"gte=0"`
	SpeedMps   *float64 `json:"speed_mps" validate:"omitempty,gte=0"`
	HeadingDeg *float64 `json:"heading_deg" validate:"omitempty,heading"`

	// CapturedAt is the device clock. It is accepted but never trusted: the
	// sample time is always the server's receipt time.
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// NodesQuery holds the query parameters of GET /api/v1/nodes.
type NodesQuery struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// ArriveRequest is the optional body of the arrive endpoint. Both
// coordinates must be present for the distance check to run.
type ArriveRequest struct {
	Lat *float64 `json:"lat" validate:"required_with=Lng,omitempty,latitude"`
	Lng *float64 `json:"lng" validate:"required_with=Lat,omitempty,longitude"`
}

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
	Uptime   string            `json:"uptime,omitempty"`
	Database string            `json:"database,omitempty"`
}
