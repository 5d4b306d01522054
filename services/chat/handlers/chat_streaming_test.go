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
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/KodiakChat/services/bedrock"
	"github.com/AleutianAI/KodiakChat/services/chat/answer"
	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postStream(t *testing.T, handler *StreamingChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST("/v1/chat/stream", handler.HandleChatStream)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatStream_ChunkedDelivery(t *testing.T) {
	draft := answer.Process("The office is in Anchorage.", []datatypes.CitationSpan{
		{Start: 0, End: 27, Locators: []string{"s3://docs/offices.md"}},
	})
	handler := NewStreamingChatHandler(&stubPipeline{draft: &draft}, 0)

	rec := postStream(t, handler, `{"message":"where?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := decodeFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)

	// All frames but the last are chunks; the last is done with citations.
	last := frames[len(frames)-1]
	assert.True(t, last.Done)
	require.Len(t, last.Citations, 1)
	assert.Equal(t, "Knowledge Base: s3://docs/offices.md", last.Citations[0].Text)

	var rejoined []string
	for _, f := range frames[:len(frames)-1] {
		require.NotEmpty(t, f.Chunk)
		assert.False(t, f.Done)
		rejoined = append(rejoined, f.Chunk)
	}
	assert.Equal(t, draft.RawText, strings.Join(rejoined, " "))
}

func TestHandleChatStream_AlwaysEndsWithDone(t *testing.T) {
	draft := answer.Process("Short answer.", nil)
	handler := NewStreamingChatHandler(&stubPipeline{draft: &draft}, 0)

	rec := postStream(t, handler, `{"message":"q"}`)
	frames := decodeFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.True(t, frames[len(frames)-1].Done)
}

func TestHandleChatStream_ErrorThenDone(t *testing.T) {
	handler := NewStreamingChatHandler(&stubPipeline{err: &bedrock.GenerationError{Message: "down"}}, 0)

	rec := postStream(t, handler, `{"message":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := decodeFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.NotEmpty(t, frames[0].Error)
	assert.True(t, frames[1].Done)
	assert.Empty(t, frames[1].Citations)
}

func TestHandleChatStream_TwoStepForwardsDeltas(t *testing.T) {
	handler := NewStreamingChatHandler(&stubPipeline{
		deltas: []string{"The ", "office ", "is here."},
	}, 0)

	rec := postStream(t, handler, `{"message":"q","pipeline":"twostep"}`)
	frames := decodeFrames(t, rec.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "The ", frames[0].Chunk)
	assert.Equal(t, "office ", frames[1].Chunk)
	assert.Equal(t, "is here.", frames[2].Chunk)
	assert.True(t, frames[3].Done)
	assert.Empty(t, frames[3].Citations)
}

func TestHandleChatStream_ValidationFailureIsPlainJSON(t *testing.T) {
	handler := NewStreamingChatHandler(&stubPipeline{}, 0)

	rec := postStream(t, handler, `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Rejected before the stream opened, so no SSE framing.
	assert.NotContains(t, rec.Body.String(), "data: ")
}

func TestHandleChatStream_StreamFailureAfterDeltas(t *testing.T) {
	handler := NewStreamingChatHandler(&stubPipeline{
		deltas:    []string{"partial "},
		streamErr: &bedrock.GenerationError{Message: "cut off"},
	}, 0)

	rec := postStream(t, handler, `{"message":"q","pipeline":"twostep"}`)
	frames := decodeFrames(t, rec.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, "partial ", frames[0].Chunk)
	assert.NotEmpty(t, frames[1].Error)
	assert.True(t, frames[2].Done)
}
