// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/KodiakChat/pkg/logging"
	"github.com/AleutianAI/KodiakChat/services/bedrock"
	"github.com/AleutianAI/KodiakChat/services/chat/config"
	"github.com/AleutianAI/KodiakChat/services/chat/handlers"
	"github.com/AleutianAI/KodiakChat/services/chat/logwatch"
	"github.com/AleutianAI/KodiakChat/services/chat/routes"
	"github.com/AleutianAI/KodiakChat/services/chat/services"
	"github.com/AleutianAI/KodiakChat/services/cloudwatch"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "kodiak-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("kodiak-chat-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("KODIAK_LOG_LEVEL")),
		LogDir:  os.Getenv("KODIAK_LOG_DIR"),
		Service: "chat",
		JSON:    true,
	})
	defer logger.Close()
	logger.Install()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	cfg, err := config.Load(os.Getenv("KODIAK_CONFIG"))
	if err != nil {
		log.Fatalf("FATAL: Could not load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.Fatalf("FATAL: Could not load AWS configuration: %v", err)
	}

	kbClient := bedrock.NewKnowledgeBaseClient(awsCfg, cfg.KnowledgeBaseID, cfg.ModelID, cfg.ResultCount)
	modelClient := bedrock.NewModelClient(awsCfg, cfg.ModelID)
	params := bedrock.SamplingParams{
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		MaxGenLen:   &cfg.MaxGenLen,
	}

	var logs *logwatch.Aggregator
	var scheduler *logwatch.RefreshScheduler
	if cfg.LogGroup != "" {
		fetcher := cloudwatch.NewFetcher(awsCfg)
		logs = logwatch.NewAggregator(fetcher, cfg.LogGroup, cfg.Lookback(), cfg.LogKeywords)
		scheduler = logwatch.NewRefreshScheduler(logs, logwatch.SchedulerConfig{
			Interval: cfg.RefreshInterval,
		})
		if err := scheduler.Start(ctx); err != nil {
			log.Fatalf("FATAL: Could not start log refresh scheduler: %v", err)
		}
		defer scheduler.Stop()
	} else {
		slog.Info("No log group configured, log enrichment disabled")
	}

	var logProvider services.LogProvider
	if logs != nil {
		logProvider = logs
	}
	pipeline := services.NewChatPipelineService(kbClient, modelClient, kbClient, logProvider, params)

	router := gin.Default()
	router.Use(otelgin.Middleware("kodiak-chat-service"))

	chatHandler := handlers.NewChatHandler(pipeline)
	streamHandler := handlers.NewStreamingChatHandler(pipeline, cfg.TypingDelay())
	var logHandler *handlers.LogHandler
	if scheduler != nil {
		logHandler = handlers.NewLogHandler(scheduler)
	} else {
		logHandler = handlers.NewLogHandler(noopRefresher{})
	}
	routes.SetupRoutes(router, chatHandler, streamHandler, logHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting the chat server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
	slog.Info("Server stopped")
}

// noopRefresher backs the refresh endpoint when no log group is
// configured; a refresh then has nothing to do.
type noopRefresher struct{}

func (noopRefresher) RunNow(ctx context.Context) (logwatch.Snapshot, error) {
	return logwatch.Snapshot{}, nil
}
