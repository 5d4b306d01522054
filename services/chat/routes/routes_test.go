// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/KodiakChat/services/bedrock"
	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/AleutianAI/KodiakChat/services/chat/handlers"
	"github.com/AleutianAI/KodiakChat/services/chat/logwatch"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopPipeline struct{}

func (nopPipeline) Answer(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.AnswerDraft, error) {
	return &datatypes.AnswerDraft{RawText: "ok"}, nil
}

func (nopPipeline) StreamDeltas(ctx context.Context, req *datatypes.ChatRequest, cb bedrock.StreamCallback) error {
	return nil
}

type nopRefresher struct{}

func (nopRefresher) RunNow(ctx context.Context) (logwatch.Snapshot, error) {
	return logwatch.Snapshot{}, nil
}

func newTestRouter() *gin.Engine {
	router := gin.New()
	SetupRoutes(router,
		handlers.NewChatHandler(nopPipeline{}),
		handlers.NewStreamingChatHandler(nopPipeline{}, 0),
		handlers.NewLogHandler(nopRefresher{}))
	return router
}

func TestSetupRoutes_EndpointsRegistered(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/v1/chat"},
		{http.MethodPost, "/v1/chat/stream"},
		{http.MethodPost, "/v1/logs/refresh"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestSetupRoutes_UnknownPathIs404(t *testing.T) {
	router := newTestRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nonsense", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupRoutes_MethodMismatch(t *testing.T) {
	router := newTestRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
