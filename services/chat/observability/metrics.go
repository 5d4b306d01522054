// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the chat
// service.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the chat service.
type Metrics struct {
	// RequestsTotal counts chat API requests by endpoint and status.
	RequestsTotal *prometheus.CounterVec

	// ChunksTotal counts response chunks written to streams.
	ChunksTotal prometheus.Counter

	// ActiveStreams tracks currently open streaming responses.
	ActiveStreams prometheus.Gauge

	// LogRefreshesTotal counts log snapshot refreshes by outcome.
	LogRefreshesTotal *prometheus.CounterVec

	// ErrorsTotal counts pipeline errors by endpoint and error code.
	ErrorsTotal *prometheus.CounterVec

	// StreamDurationSeconds observes end-to-end stream durations.
	StreamDurationSeconds *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// InitMetrics creates and registers all chat service metrics with the
// given registerer.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kodiak",
				Subsystem: "chat",
				Name:      "requests_total",
				Help:      "Total chat API requests by endpoint and status.",
			},
			[]string{"endpoint", "status"},
		),
		ChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kodiak",
				Subsystem: "chat",
				Name:      "chunks_total",
				Help:      "Total response chunks written to streaming clients.",
			},
		),
		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kodiak",
				Subsystem: "chat",
				Name:      "active_streams",
				Help:      "Number of streaming responses currently open.",
			},
		),
		LogRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kodiak",
				Subsystem: "chat",
				Name:      "log_refreshes_total",
				Help:      "Total operational log snapshot refreshes by outcome.",
			},
			[]string{"status"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kodiak",
				Subsystem: "chat",
				Name:      "errors_total",
				Help:      "Total pipeline errors by endpoint and error code.",
			},
			[]string{"endpoint", "error_code"},
		),
		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kodiak",
				Subsystem: "chat",
				Name:      "stream_duration_seconds",
				Help:      "End-to-end duration of streaming responses.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline"},
		),
	}
}

// DefaultMetrics returns the process-wide metrics instance, registering
// it with the default Prometheus registry on first call.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = InitMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}
