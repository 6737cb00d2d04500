// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// readyTimeout bounds the dependency checks of the readiness probe.
const readyTimeout = 2 * time.Second

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, time.Time{}, models.HealthStatus{
		Status:  "healthy",
		Version: h.version,
		Uptime:  h.now().Sub(h.startTime).Truncate(time.Second).String(),
	})
}

// HealthReady reports whether the database is reachable. It returns 503
// while it is not so load balancers stop routing to this instance.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	status := "ready"
	code := http.StatusOK

	if h.db == nil {
		checks["database"] = "not configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	if h.wsHub != nil {
		checks["websocket"] = "ok"
	}

	respondJSON(w, code, &models.APIResponse{
		Status:   "success",
		Data:     models.HealthStatus{Status: status, Version: h.version, Checks: checks},
		Metadata: metadata(r, time.Time{}),
	})
}
