// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logwatch caches operational log text fetched from an external
// source and exposes a keyword-filtered view of it to the chat pipeline.
//
// The cache is a single snapshot replaced wholesale on every refresh.
// Readers always observe a complete snapshot; there is no incremental
// mutation and no reader-side locking.
package logwatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// NoErrorsSentinel is returned by Filtered when no log line matches any
// keyword, so the prompt builder always has non-empty text to
// interpolate.
const NoErrorsSentinel = "No errors found in the logs."

// DefaultKeywords is the fixed keyword set used to filter log lines.
// Matching is case-insensitive substring containment.
var DefaultKeywords = []string{
	"error", "exception", "fail", "traceback", "warning", "critical", "fatal",
}

// Snapshot is one complete capture of raw log text. Snapshots are
// immutable once published.
type Snapshot struct {
	RawText   string
	FetchedAt time.Time
}

// Fetcher retrieves raw log text for a resource over a lookback window.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	FetchLogs(ctx context.Context, resource string, lookback time.Duration) (string, error)
}

// Aggregator owns the process-wide log snapshot cache.
//
// # Description
//
// Refresh replaces the cached snapshot atomically via a single pointer
// swap, so concurrent readers never see a half-written refresh. On fetch
// failure the cache is replaced with an explicit error marker rather
// than left stale: downstream consumers can then tell "fetch failed"
// apart from "no data", and the marker itself matches the "error"
// filter keyword so it surfaces in the filtered view.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Requests read whatever
// snapshot is currently cached and never block on a refresh in flight.
type Aggregator struct {
	fetcher  Fetcher
	resource string
	lookback time.Duration
	keywords []string
	snap     atomic.Pointer[Snapshot]
}

// NewAggregator creates an Aggregator for the given log resource.
//
// keywords may be nil to use DefaultKeywords. Panics on a nil fetcher;
// this is a wiring error, not a runtime condition.
func NewAggregator(fetcher Fetcher, resource string, lookback time.Duration, keywords []string) *Aggregator {
	if fetcher == nil {
		panic("logwatch: fetcher must not be nil")
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	a := &Aggregator{
		fetcher:  fetcher,
		resource: resource,
		lookback: lookback,
		keywords: keywords,
	}
	a.snap.Store(&Snapshot{})
	return a
}

// Refresh fetches fresh log text and atomically replaces the snapshot.
//
// On failure the snapshot is replaced with an error marker (see type
// docs) and the fetch error is returned so callers can report it; the
// cache is still in a well-defined state either way.
func (a *Aggregator) Refresh(ctx context.Context) (Snapshot, error) {
	raw, err := a.fetcher.FetchLogs(ctx, a.resource, a.lookback)
	now := time.Now()
	if err != nil {
		marker := fmt.Sprintf("Error retrieving logs: %v", err)
		snap := Snapshot{RawText: marker, FetchedAt: now}
		a.snap.Store(&snap)
		slog.Error("Log refresh failed, cache replaced with error marker",
			"resource", a.resource, "error", err)
		return snap, err
	}

	snap := Snapshot{RawText: raw, FetchedAt: now}
	a.snap.Store(&snap)
	slog.Debug("Log snapshot refreshed",
		"resource", a.resource, "bytes", len(raw))
	return snap, nil
}

// Current returns the cached snapshot. Never blocks.
func (a *Aggregator) Current() Snapshot {
	return *a.snap.Load()
}

// Filtered returns the lines of the cached snapshot that match the
// configured keywords, or NoErrorsSentinel when none do.
func (a *Aggregator) Filtered() string {
	return FilterLines(a.Current().RawText, a.keywords)
}

// FilterLines retains the lines of raw whose case-insensitive content
// contains at least one keyword. When no line matches (including for
// empty input) it returns NoErrorsSentinel.
func FilterLines(raw string, keywords []string) string {
	var matched []string
	for _, line := range strings.Split(raw, "\n") {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, line)
				break
			}
		}
	}
	if len(matched) == 0 {
		return NoErrorsSentinel
	}
	return strings.Join(matched, "\n")
}
