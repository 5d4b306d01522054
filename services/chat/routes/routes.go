// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the HTTP endpoints for the chat service.
package routes

import (
	"github.com/AleutianAI/KodiakChat/services/chat/handlers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers all chat service endpoints on the router.
//
// Endpoint layout:
//
//	GET  /health            - liveness probe
//	GET  /metrics           - Prometheus metrics
//	POST /v1/chat           - single-shot chat
//	POST /v1/chat/stream    - streaming chat (SSE)
//	POST /v1/logs/refresh   - manual log snapshot refresh
func SetupRoutes(
	router *gin.Engine,
	chat *handlers.ChatHandler,
	stream *handlers.StreamingChatHandler,
	logs *handlers.LogHandler,
) {
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/chat", chat.HandleChat)
		v1.POST("/chat/stream", stream.HandleChatStream)
		v1.POST("/logs/refresh", logs.HandleLogRefresh)
	}
}
