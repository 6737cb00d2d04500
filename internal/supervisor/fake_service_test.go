// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

var errCrash = errors.New("fake service crashed")

// fakeService counts runs and crashes on its first `crashes` runs, standing
// in for the hub or MQTT subscriber losing its connection.
type fakeService struct {
	name    string
	crashes int32
	runs    atomic.Int32
	exits   atomic.Int32
}

func newFakeService(name string) *fakeService {
	return &fakeService{name: name}
}

// crashing sets how many runs fail before the service stays up.
func (f *fakeService) crashing(n int32) *fakeService {
	f.crashes = n
	return f
}

func (f *fakeService) Serve(ctx context.Context) error {
	run := f.runs.Add(1)
	defer f.exits.Add(1)
	if run <= f.crashes {
		return errCrash
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) String() string { return f.name }
