// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Refresh Scheduler
// =============================================================================

// SchedulerConfig holds configuration for the background refresh
// scheduler.
//
// # Fields
//
//   - Interval: How often to refresh the log snapshot. Default: 1 hour.
type SchedulerConfig struct {
	Interval time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration:
// an hourly refresh.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: 1 * time.Hour}
}

// RefreshScheduler runs periodic log refreshes in the background.
//
// # Description
//
// Manages the lifecycle of a goroutine that calls Aggregator.Refresh at
// a fixed interval, using the ticker + done channel pattern for
// graceful shutdown. A failed cycle is logged and the schedule
// continues; nothing short of Stop or context cancellation terminates
// it. Request handling never waits on this scheduler; requests read
// whatever snapshot the aggregator currently holds.
//
// # Thread Safety
//
// All public methods are thread-safe.
type RefreshScheduler struct {
	aggregator *Aggregator
	config     SchedulerConfig
	done       chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewRefreshScheduler creates a scheduler for the given aggregator.
//
// # Examples
//
//	scheduler := logwatch.NewRefreshScheduler(agg, logwatch.DefaultSchedulerConfig())
//	if err := scheduler.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer scheduler.Stop()
func NewRefreshScheduler(aggregator *Aggregator, config SchedulerConfig) *RefreshScheduler {
	if aggregator == nil {
		panic("logwatch: aggregator must not be nil")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &RefreshScheduler{
		aggregator: aggregator,
		config:     config,
		done:       make(chan struct{}),
	}
}

// Start begins the background refresh loop, running an initial refresh
// immediately. Returns an error if the scheduler is already running.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("refresh scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset for potential restart
	s.mu.Unlock()

	slog.Info("Log refresh scheduler starting",
		"interval", s.config.Interval.String(),
	)

	go s.runLoop(ctx)
	return nil
}

// Stop signals the scheduler to stop. Safe to call multiple times. An
// in-flight refresh is not interrupted.
func (s *RefreshScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	slog.Info("Log refresh scheduler stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow triggers an immediate refresh without affecting the scheduled
// cadence. Backs the on-demand refresh endpoint.
func (s *RefreshScheduler) RunNow(ctx context.Context) (Snapshot, error) {
	return s.aggregator.Refresh(ctx)
}

// runLoop is the scheduler goroutine.
func (s *RefreshScheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeRefresh(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Log refresh scheduler stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Log refresh scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeRefresh(ctx)
		}
	}
}

// executeRefresh runs one refresh cycle. Errors never propagate out of
// the loop; the aggregator has already recorded the failure marker.
func (s *RefreshScheduler) executeRefresh(ctx context.Context) {
	snap, err := s.aggregator.Refresh(ctx)
	if err != nil {
		slog.Error("Scheduled log refresh failed", "error", err)
		return
	}
	slog.Debug("Scheduled log refresh completed",
		"fetched_at", snap.FetchedAt, "bytes", len(snap.RawText))
}
