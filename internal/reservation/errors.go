// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrNodeExpired         = errors.New("node has expired")
	ErrAlreadyCollected    = errors.New("node already collected")
	ErrStateExpired        = errors.New("node state has expired")
	ErrAlreadyArrived      = errors.New("already arrived at node")
	ErrNotArrived          = errors.New("must arrive before collecting")
	ErrGraceElapsed        = errors.New("collection grace window has elapsed")
	ErrReservationLimit    = errors.New("active reservation limit reached")

	// ErrStateConflict means another request changed the row between read
	// and write. Retrying may succeed.
	ErrStateConflict = errors.New("node state changed concurrently")
)

// TooFarError rejects an arrival outside the arrival radius. DistanceM lets
// the client show how much closer the player must get.
type TooFarError struct {
	DistanceM float64
	LimitM    float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("too far from node: %.1fm away, limit %.1fm", e.DistanceM, e.LimitM)
}

// Code returns the machine-readable reason for err, or "" if err is not a
// state machine rejection.
func Code(err error) string {
	var tooFar *TooFarError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &tooFar):
		return "TOO_FAR"
	case errors.Is(err, ErrNodeNotFound):
		return "NODE_NOT_FOUND"
	case errors.Is(err, ErrReservationNotFound):
		return "RESERVATION_NOT_FOUND"
	case errors.Is(err, ErrNodeExpired):
		return "NODE_EXPIRED"
	case errors.Is(err, ErrAlreadyCollected):
		return "ALREADY_COLLECTED"
	case errors.Is(err, ErrStateExpired):
		return "STATE_EXPIRED"
	case errors.Is(err, ErrAlreadyArrived):
		return "ALREADY_ARRIVED"
	case errors.Is(err, ErrNotArrived):
		return "NOT_ARRIVED"
	case errors.Is(err, ErrGraceElapsed):
		return "GRACE_ELAPSED"
	case errors.Is(err, ErrReservationLimit):
		return "RESERVATION_LIMIT"
	case errors.Is(err, ErrStateConflict):
		return "STATE_CONFLICT"
	}
	return ""
}
