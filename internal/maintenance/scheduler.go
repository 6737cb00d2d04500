// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package maintenance runs the periodic sweeps that keep the store bounded.
//
// Two loops run on their own tickers:
//   - expire sweep (default: every minute) moves AVAILABLE and RESERVED
//     rows of expired nodes to EXPIRED
//   - retention sweep (default: hourly) purges old location samples and
//     deletes nodes, with their state rows, long after they expired
//
// A failed sweep is logged and counted; the next tick retries it.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
)

// NodeStore is the node side of the sweeps.
type NodeStore interface {
	ExpireStates(ctx context.Context, now time.Time) (int64, error)
	DeleteNodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SampleStore is the sample side of the retention sweep.
type SampleStore interface {
	PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds sweep cadence and retention windows.
type Config struct {
	ExpireInterval    time.Duration
	RetentionInterval time.Duration

	// SweepTimeout bounds a single sweep.
	SweepTimeout time.Duration

	// SampleRetention and NodeRetention are how long samples and expired
	// nodes are kept.
	SampleRetention time.Duration
	NodeRetention   time.Duration

	// AfterRetention, when set, runs at the end of every retention sweep.
	// The engine uses it to drop idle per-owner throttles.
	AfterRetention func()

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default sweep configuration.
func DefaultConfig() Config {
	return Config{
		ExpireInterval:    time.Minute,
		RetentionInterval: time.Hour,
		SweepTimeout:      30 * time.Second,
		SampleRetention:   24 * time.Hour,
		NodeRetention:     7 * 24 * time.Hour,
	}
}

// Scheduler owns the sweep loops.
type Scheduler struct {
	nodes   NodeStore
	samples SampleStore
	config  Config
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. samples may be nil when samples expire
// on their own (Badger TTL).
func NewScheduler(nodes NodeStore, samples SampleStore, config Config) *Scheduler {
	def := DefaultConfig()
	if config.ExpireInterval <= 0 {
		config.ExpireInterval = def.ExpireInterval
	}
	if config.RetentionInterval <= 0 {
		config.RetentionInterval = def.RetentionInterval
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = def.SweepTimeout
	}
	if config.SampleRetention <= 0 {
		config.SampleRetention = def.SampleRetention
	}
	if config.NodeRetention <= 0 {
		config.NodeRetention = def.NodeRetention
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Scheduler{
		nodes:   nodes,
		samples: samples,
		config:  config,
		logger:  logging.WithComponent("maintenance"),
	}
}

// Start launches both sweep loops. Calling Start on a running scheduler is
// an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("maintenance scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.logger.Info().
		Dur("expire_interval", s.config.ExpireInterval).
		Dur("retention_interval", s.config.RetentionInterval).
		Msg("Starting maintenance scheduler")

	s.wg.Add(2)
	go s.loop(ctx, s.stopCh, s.config.ExpireInterval, s.RunExpireSweep)
	go s.loop(ctx, s.stopCh, s.config.RetentionInterval, s.RunRetentionSweep)
	return nil
}

// Stop halts the loops and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Maintenance scheduler stopped")
	return nil
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, every time.Duration, sweep func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are already logged and counted.
			_ = sweep(ctx) //nolint:errcheck
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunExpireSweep moves live rows of expired nodes to EXPIRED once.
func (s *Scheduler) RunExpireSweep(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.nodes.ExpireStates(ctx, s.config.Now())
	rows := map[string]int64{"node_player_states": n}
	metrics.RecordSweep("expire", rows, time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Msg("Expire sweep failed")
		return fmt.Errorf("expire sweep: %w", err)
	}
	if n > 0 {
		s.logger.Debug().Int64("states", n).Msg("Expire sweep completed")
	}
	return nil
}

// RunRetentionSweep purges old samples and long-expired nodes once. Both
// purges are attempted even if the first fails.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	start := time.Now()
	now := s.config.Now()
	rows := make(map[string]int64, 2)
	var firstErr error

	if s.samples != nil {
		n, err := s.samples.PurgeSamplesBefore(ctx, now.Add(-s.config.SampleRetention))
		rows["location_samples"] = n
		if err != nil {
			firstErr = fmt.Errorf("purge samples: %w", err)
			s.logger.Error().Err(err).Msg("Sample purge failed")
		}
	}

	n, err := s.nodes.DeleteNodesExpiredBefore(ctx, now.Add(-s.config.NodeRetention))
	rows["nodes"] = n
	if err != nil {
		s.logger.Error().Err(err).Msg("Node purge failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("delete nodes: %w", err)
		}
	}

	if s.config.AfterRetention != nil {
		s.config.AfterRetention()
	}

	metrics.RecordSweep("retention", rows, time.Since(start), firstErr)
	if firstErr != nil {
		return fmt.Errorf("retention sweep: %w", firstErr)
	}
	s.logger.Debug().
		Int64("samples", rows["location_samples"]).
		Int64("nodes", rows["nodes"]).
		Msg("Retention sweep completed")
	return nil
}
