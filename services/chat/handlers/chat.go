// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the HTTP handlers for the chat service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/AleutianAI/KodiakChat/services/chat/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var handlerTracer = otel.Tracer("kodiak.chat.handlers")

// ChatService is the pipeline surface the handlers depend on. Satisfied
// by services.ChatPipelineService.
type ChatService interface {
	Answer(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.AnswerDraft, error)
}

// ChatHandler serves the single-shot chat endpoint.
type ChatHandler struct {
	pipeline ChatService
	metrics  *observability.Metrics
}

// NewChatHandler creates a handler backed by the given pipeline.
func NewChatHandler(pipeline ChatService) *ChatHandler {
	if pipeline == nil {
		panic("handlers: pipeline must not be nil")
	}
	return &ChatHandler{
		pipeline: pipeline,
		metrics:  observability.DefaultMetrics(),
	}
}

// HandleChat answers one chat request and returns the complete
// marker-annotated response in a single JSON body.
//
// # Description
//
// Binds and validates the request, runs the synthesis pipeline, and
// returns the finalized answer with its ranked citation list. Malformed
// or oversized requests get 400; pipeline failures get 502 since the
// failure is in an upstream collaborator, not this service.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	ctx, span := handlerTracer.Start(c.Request.Context(), "ChatHandler.HandleChat")
	defer span.End()

	requestID := uuid.New().String()
	span.SetAttributes(attribute.String("request.id", requestID))

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		h.metrics.RequestsTotal.WithLabelValues("chat", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request validation failed")
		h.metrics.RequestsTotal.WithLabelValues("chat", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Handling chat request",
		"request_id", requestID,
		"pipeline", req.EffectivePipeline(),
		"message_length", len(req.Message),
	)

	draft, err := h.pipeline.Answer(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		slog.Error("Chat pipeline failed", "request_id", requestID, "error", err)
		h.metrics.RequestsTotal.WithLabelValues("chat", "502").Inc()
		h.metrics.ErrorsTotal.WithLabelValues("chat", "pipeline_failure").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to generate a response."})
		return
	}

	h.metrics.RequestsTotal.WithLabelValues("chat", "200").Inc()
	c.JSON(http.StatusOK, datatypes.ChatResponse{
		Response:  draft.RawText,
		Citations: draft.Summaries(),
		RequestID: requestID,
	})
}

// HandleHealth reports service liveness.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
