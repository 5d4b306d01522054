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
	"time"

	"github.com/AleutianAI/KodiakChat/services/bedrock"
	"github.com/AleutianAI/KodiakChat/services/chat/answer"
	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/AleutianAI/KodiakChat/services/chat/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StreamingChatService is the pipeline surface the streaming handler
// depends on. Satisfied by services.ChatPipelineService.
type StreamingChatService interface {
	ChatService
	StreamDeltas(ctx context.Context, req *datatypes.ChatRequest, cb bedrock.StreamCallback) error
}

// StreamingChatHandler serves the streaming chat endpoint.
//
// # Description
//
// The combined pipeline produces its full answer up front; the handler
// then pseudo-streams it as word-group chunks with a short typing delay
// between frames, ending with a done frame carrying the citation list.
// The two-step pipeline forwards model deltas as they arrive, with no
// delay and no citations.
//
// Every stream terminates with a done frame, including failed ones: on
// pipeline error the handler writes one error frame and then the done
// frame, so clients never need a timeout to detect end-of-stream.
type StreamingChatHandler struct {
	pipeline    StreamingChatService
	typingDelay time.Duration
	metrics     *observability.Metrics
}

// NewStreamingChatHandler creates a streaming handler. typingDelay is
// the pause between pseudo-streamed chunks; zero disables it.
func NewStreamingChatHandler(pipeline StreamingChatService, typingDelay time.Duration) *StreamingChatHandler {
	if pipeline == nil {
		panic("handlers: pipeline must not be nil")
	}
	return &StreamingChatHandler{
		pipeline:    pipeline,
		typingDelay: typingDelay,
		metrics:     observability.DefaultMetrics(),
	}
}

// HandleChatStream answers one chat request as a server-sent event
// stream of chunk frames followed by a terminal done frame.
func (h *StreamingChatHandler) HandleChatStream(c *gin.Context) {
	ctx, span := handlerTracer.Start(c.Request.Context(), "StreamingChatHandler.HandleChatStream")
	defer span.End()

	requestID := uuid.New().String()
	span.SetAttributes(attribute.String("request.id", requestID))

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		h.metrics.RequestsTotal.WithLabelValues("chat_stream", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request validation failed")
		h.metrics.RequestsTotal.WithLabelValues("chat_stream", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewFrameWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "streaming unsupported")
		h.metrics.RequestsTotal.WithLabelValues("chat_stream", "500").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming is not supported."})
		return
	}

	pipeline := req.EffectivePipeline()
	slog.Info("Handling streaming chat request",
		"request_id", requestID,
		"pipeline", pipeline,
		"message_length", len(req.Message),
	)

	h.metrics.ActiveStreams.Inc()
	defer h.metrics.ActiveStreams.Dec()
	start := time.Now()
	defer func() {
		h.metrics.StreamDurationSeconds.WithLabelValues(pipeline).Observe(time.Since(start).Seconds())
	}()

	var streamErr error
	if pipeline == datatypes.PipelineTwoStep {
		streamErr = h.streamDeltas(ctx, &req, writer)
	} else {
		streamErr = h.streamChunked(ctx, &req, writer)
	}

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "stream failed")
		slog.Error("Streaming chat failed", "request_id", requestID, "error", streamErr)
		h.metrics.ErrorsTotal.WithLabelValues("chat_stream", "pipeline_failure").Inc()
		h.metrics.RequestsTotal.WithLabelValues("chat_stream", "error").Inc()

		// The stream must still terminate cleanly for the client.
		if err := writer.WriteError("Failed to generate a response."); err != nil {
			slog.Warn("Failed to write error frame", "request_id", requestID, "error", err)
		}
		if err := writer.WriteDone(nil); err != nil {
			slog.Warn("Failed to write done frame", "request_id", requestID, "error", err)
		}
		return
	}

	h.metrics.RequestsTotal.WithLabelValues("chat_stream", "200").Inc()
}

// streamChunked runs the full pipeline, then pseudo-streams the
// finished answer as word-group chunks and closes with the citation
// summaries.
func (h *StreamingChatHandler) streamChunked(ctx context.Context, req *datatypes.ChatRequest, writer FrameWriter) error {
	draft, err := h.pipeline.Answer(ctx, req)
	if err != nil {
		return err
	}

	for _, chunk := range answer.SplitChunks(draft.RawText) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := writer.WriteChunk(chunk); err != nil {
			return err
		}
		h.metrics.ChunksTotal.Inc()
		if h.typingDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.typingDelay):
			}
		}
	}

	return writer.WriteDone(draft.Summaries())
}

// streamDeltas forwards model deltas as chunk frames and closes with an
// empty done frame; the delta path carries no citation data.
func (h *StreamingChatHandler) streamDeltas(ctx context.Context, req *datatypes.ChatRequest, writer FrameWriter) error {
	err := h.pipeline.StreamDeltas(ctx, req, func(delta string) error {
		if err := writer.WriteChunk(delta); err != nil {
			return err
		}
		h.metrics.ChunksTotal.Inc()
		return nil
	})
	if err != nil {
		return err
	}
	return writer.WriteDone(nil)
}
