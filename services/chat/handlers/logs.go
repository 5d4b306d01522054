// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/AleutianAI/KodiakChat/services/chat/logwatch"
	"github.com/AleutianAI/KodiakChat/services/chat/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
)

// LogRefresher triggers an immediate log snapshot refresh. Satisfied by
// logwatch.RefreshScheduler.
type LogRefresher interface {
	RunNow(ctx context.Context) (logwatch.Snapshot, error)
}

// LogHandler serves the manual log-refresh endpoint.
type LogHandler struct {
	refresher LogRefresher
	metrics   *observability.Metrics
}

// NewLogHandler creates a handler backed by the given refresher.
func NewLogHandler(refresher LogRefresher) *LogHandler {
	if refresher == nil {
		panic("handlers: refresher must not be nil")
	}
	return &LogHandler{
		refresher: refresher,
		metrics:   observability.DefaultMetrics(),
	}
}

// HandleLogRefresh forces an immediate refresh of the operational log
// snapshot, outside the periodic schedule.
//
// A refresh failure still returns 200: the aggregator has already
// degraded the snapshot to an error marker, so the cache state is
// consistent and the caller learns the outcome from the body.
func (h *LogHandler) HandleLogRefresh(c *gin.Context) {
	ctx, span := handlerTracer.Start(c.Request.Context(), "LogHandler.HandleLogRefresh")
	defer span.End()

	snap, err := h.refresher.RunNow(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "log refresh failed")
		slog.Error("Manual log refresh failed", "error", err)
		h.metrics.LogRefreshesTotal.WithLabelValues("failure").Inc()
		c.JSON(http.StatusOK, datatypes.RefreshResponse{
			Status:  "error",
			Message: "Log refresh failed; snapshot holds the error details.",
		})
		return
	}

	slog.Info("Manual log refresh completed",
		"snapshot_bytes", len(snap.RawText), "fetched_at", snap.FetchedAt)
	h.metrics.LogRefreshesTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, datatypes.RefreshResponse{
		Status:  "ok",
		Message: "Log snapshot refreshed.",
	})
}
