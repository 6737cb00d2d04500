// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package services

import (
	"context"
	"fmt"
)

// SchedulerManager is the Start/Stop lifecycle of *maintenance.Scheduler.
type SchedulerManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// MaintenanceService runs the sweep scheduler under the supervisor.
//
// It adapts Start/Stop to suture's Serve pattern:
//  1. Calls Start(ctx) to launch the sweep tickers
//  2. Waits for context cancellation
//  3. Calls Stop() and waits for in-flight sweeps
type MaintenanceService struct {
	manager SchedulerManager
	name    string
}

// NewMaintenanceService creates a new scheduler service wrapper.
func NewMaintenanceService(manager SchedulerManager) *MaintenanceService {
	return &MaintenanceService{
		manager: manager,
		name:    "maintenance-scheduler",
	}
}

// Serve implements suture.Service. A Start failure is returned so suture
// restarts the service with backoff.
func (s *MaintenanceService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("maintenance scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("maintenance scheduler stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *MaintenanceService) String() string {
	return s.name
}
