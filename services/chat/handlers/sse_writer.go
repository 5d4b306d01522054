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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
)

// =============================================================================
// Stream frame writing
// =============================================================================

// FrameWriter emits the framed streaming protocol: zero or more chunk
// frames, at most one error frame, and exactly one terminal done frame.
// Implementations must be safe for use from a single goroutine; they
// need not be safe for concurrent writers.
type FrameWriter interface {
	WriteChunk(text string) error
	WriteError(message string) error
	WriteDone(citations []datatypes.CitationSummary) error
}

// sseFrameWriter writes stream frames as server-sent events, flushing
// after every frame so clients see chunks as they are produced.
type sseFrameWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    bool
}

// NewFrameWriter wraps an HTTP response as an SSE frame writer.
//
// Returns an error if the response writer does not support flushing,
// since unflushed SSE degrades to one buffered blob and defeats the
// protocol.
func NewFrameWriter(w http.ResponseWriter) (FrameWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseFrameWriter{w: w, flusher: flusher}, nil
}

// SetSSEHeaders configures the response headers for server-sent events.
// Must be called before the first frame is written.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteChunk implements the FrameWriter interface.
func (s *sseFrameWriter) WriteChunk(text string) error {
	return s.writeFrame(&datatypes.StreamFrame{Chunk: text})
}

// WriteError implements the FrameWriter interface. An error frame is
// informational; the stream still terminates with a done frame.
func (s *sseFrameWriter) WriteError(message string) error {
	return s.writeFrame(&datatypes.StreamFrame{Error: message})
}

// WriteDone implements the FrameWriter interface. Subsequent writes of
// any kind are rejected; the done frame is terminal.
func (s *sseFrameWriter) WriteDone(citations []datatypes.CitationSummary) error {
	return s.writeFrame(&datatypes.StreamFrame{Done: true, Citations: citations})
}

func (s *sseFrameWriter) writeFrame(frame *datatypes.StreamFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return fmt.Errorf("stream already terminated")
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal stream frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write stream frame: %w", err)
	}
	s.flusher.Flush()

	if frame.Done {
		s.done = true
	}
	return nil
}
