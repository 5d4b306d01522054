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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/AleutianAI/KodiakChat/services/chat/logwatch"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	snap  logwatch.Snapshot
	err   error
	calls int
}

func (s *stubRefresher) RunNow(ctx context.Context) (logwatch.Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

func postRefresh(t *testing.T, handler *LogHandler) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST("/v1/logs/refresh", handler.HandleLogRefresh)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/logs/refresh", nil))
	return rec
}

func TestHandleLogRefresh_Success(t *testing.T) {
	refresher := &stubRefresher{snap: logwatch.Snapshot{RawText: "logs", FetchedAt: time.Now()}}
	handler := NewLogHandler(refresher)

	rec := postRefresh(t, handler)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, refresher.calls)
}

func TestHandleLogRefresh_FailureStillReturns200(t *testing.T) {
	refresher := &stubRefresher{err: fmt.Errorf("fetch failed")}
	handler := NewLogHandler(refresher)

	rec := postRefresh(t, handler)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
}
