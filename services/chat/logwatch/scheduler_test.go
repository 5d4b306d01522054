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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshScheduler_StartRunsInitialRefresh(t *testing.T) {
	fetcher := &stubFetcher{text: "ERROR data"}
	agg := NewAggregator(fetcher, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return fetcher.callCount() >= 1
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return agg.Current().RawText == "ERROR data"
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshScheduler_PeriodicRefreshes(t *testing.T) {
	fetcher := &stubFetcher{text: "data"}
	agg := NewAggregator(fetcher, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: 20 * time.Millisecond})

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return fetcher.callCount() >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshScheduler_SurvivesFetchFailures(t *testing.T) {
	fetcher := &stubFetcher{err: fmt.Errorf("persistent failure")}
	agg := NewAggregator(fetcher, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: 20 * time.Millisecond})

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	// The schedule keeps firing despite every cycle failing.
	assert.Eventually(t, func() bool {
		return fetcher.callCount() >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshScheduler_DoubleStartFails(t *testing.T) {
	agg := NewAggregator(&stubFetcher{}, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	assert.Error(t, scheduler.Start(context.Background()))
}

func TestRefreshScheduler_StopIsIdempotent(t *testing.T) {
	agg := NewAggregator(&stubFetcher{}, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, scheduler.Start(context.Background()))
	assert.NoError(t, scheduler.Stop())
	assert.NoError(t, scheduler.Stop())
}

func TestRefreshScheduler_RestartAfterStop(t *testing.T) {
	fetcher := &stubFetcher{text: "data"}
	agg := NewAggregator(fetcher, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: time.Hour})

	require.NoError(t, scheduler.Start(context.Background()))
	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()
}

func TestRefreshScheduler_RunNow(t *testing.T) {
	fetcher := &stubFetcher{text: "ERROR fresh"}
	agg := NewAggregator(fetcher, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: time.Hour})

	// RunNow works without Start; it is just an immediate refresh.
	snap, err := scheduler.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ERROR fresh", snap.RawText)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestRefreshScheduler_ContextCancellationStopsLoop(t *testing.T) {
	fetcher := &stubFetcher{text: "data"}
	agg := NewAggregator(fetcher, "group", time.Hour, nil)
	scheduler := NewRefreshScheduler(agg, SchedulerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))

	assert.Eventually(t, func() bool {
		return fetcher.callCount() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	settled := fetcher.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, fetcher.callCount())
}
