// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic for the chat service.
//
// The pipeline service orchestrates the flow from user query to
// finalized answer draft: knowledge-base retrieval, prompt construction
// (with optional log context), model generation, and response
// post-processing. It holds no per-request state and is safe for
// concurrent use; all request state lives in arguments and return
// values.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/KodiakChat/services/bedrock"
	"github.com/AleutianAI/KodiakChat/services/chat/answer"
	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/AleutianAI/KodiakChat/services/chat/prompt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var pipelineTracer = otel.Tracer("kodiak.chat.services.pipeline")

// LogProvider supplies the filtered operational-log excerpt for prompt
// enrichment. Satisfied by logwatch.Aggregator. Reads must never block
// on a refresh in flight.
type LogProvider interface {
	Filtered() string
}

// ChatPipelineService answers user queries against the knowledge base.
//
// # Description
//
// Two pipelines are supported:
//
//   - combined: one managed retrieve-and-generate call that returns
//     text plus structured citation data. The post-processor ranks the
//     citations and inserts inline markers.
//   - twostep: retrieve passages, build a prompt locally (optionally
//     enriched with filtered log lines), invoke the model, post-process
//     the text. No citation data on this path.
//
// Retrieval and generation failures abort the request; log fetch
// problems never do: logs are an enrichment, not a requirement, and
// the aggregator already degrades them to an explicit marker string.
//
// The service does not retry collaborator calls.
type ChatPipelineService struct {
	retriever bedrock.Retriever
	generator bedrock.Generator
	combined  bedrock.Combined
	logs      LogProvider
	params    bedrock.SamplingParams
}

// NewChatPipelineService creates a pipeline service.
//
// retriever and generator must not be nil (the two-step pipeline needs
// both). combined may be nil, in which case combined-pipeline requests
// fail with a descriptive error; logs may be nil to disable log
// enrichment entirely.
func NewChatPipelineService(
	retriever bedrock.Retriever,
	generator bedrock.Generator,
	combined bedrock.Combined,
	logs LogProvider,
	params bedrock.SamplingParams,
) *ChatPipelineService {
	if retriever == nil {
		panic("services: retriever must not be nil")
	}
	if generator == nil {
		panic("services: generator must not be nil")
	}
	return &ChatPipelineService{
		retriever: retriever,
		generator: generator,
		combined:  combined,
		logs:      logs,
		params:    params,
	}
}

// Answer runs the full synthesis pipeline for one request and returns
// the finalized answer draft.
//
// # Inputs
//
//   - ctx: Context for cancellation, timeouts, and tracing.
//   - req: Validated chat request.
//
// # Outputs
//
//   - *datatypes.AnswerDraft: Marker-annotated answer text plus ranked
//     citations (empty on the two-step path).
//   - error: *bedrock.RetrievalError or *bedrock.GenerationError from
//     the collaborators, or a prompt template error.
func (s *ChatPipelineService) Answer(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.AnswerDraft, error) {
	ctx, span := pipelineTracer.Start(ctx, "ChatPipelineService.Answer")
	defer span.End()

	pipeline := req.EffectivePipeline()
	span.SetAttributes(attribute.String("chat.pipeline", pipeline))

	switch pipeline {
	case datatypes.PipelineCombined:
		return s.answerCombined(ctx, req)
	case datatypes.PipelineTwoStep:
		raw, err := s.generateTwoStep(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "two-step pipeline failed")
			return nil, err
		}
		draft := answer.Process(raw, nil)
		return &draft, nil
	default:
		err := fmt.Errorf("unknown pipeline %q", pipeline)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown pipeline")
		return nil, err
	}
}

// StreamDeltas runs the two-step pipeline with a streaming model
// invocation, forwarding each text delta to cb unbuffered. Used by the
// streaming endpoint when the request selects the two-step pipeline;
// no citation data exists on this path so there is nothing to
// post-process.
func (s *ChatPipelineService) StreamDeltas(ctx context.Context, req *datatypes.ChatRequest, cb bedrock.StreamCallback) error {
	ctx, span := pipelineTracer.Start(ctx, "ChatPipelineService.StreamDeltas")
	defer span.End()

	promptText, err := s.buildPrompt(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt build failed")
		return err
	}

	if err := s.generator.GenerateStream(ctx, promptText, s.params, cb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "streaming generation failed")
		return err
	}
	return nil
}

// answerCombined runs the managed retrieve-and-generate call and
// post-processes its citations.
func (s *ChatPipelineService) answerCombined(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.AnswerDraft, error) {
	ctx, span := pipelineTracer.Start(ctx, "ChatPipelineService.answerCombined")
	defer span.End()

	if s.combined == nil {
		err := fmt.Errorf("combined pipeline is not configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, "combined pipeline unavailable")
		return nil, err
	}

	result, err := s.combined.RetrieveAndGenerate(ctx, req.Message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve-and-generate failed")
		return nil, err
	}

	draft := answer.Process(result.Text, result.Citations)
	span.SetAttributes(
		attribute.Int("chat.citations", len(draft.Citations)),
		attribute.Int("chat.answer_length", len(draft.RawText)),
	)
	return &draft, nil
}

// generateTwoStep retrieves passages, builds the prompt, and invokes
// the model one-shot.
func (s *ChatPipelineService) generateTwoStep(ctx context.Context, req *datatypes.ChatRequest) (string, error) {
	promptText, err := s.buildPrompt(ctx, req)
	if err != nil {
		return "", err
	}
	return s.generator.Generate(ctx, promptText, s.params)
}

// buildPrompt retrieves passages and renders the generation prompt,
// appending the filtered log excerpt when the request asks for it.
func (s *ChatPipelineService) buildPrompt(ctx context.Context, req *datatypes.ChatRequest) (string, error) {
	ctx, span := pipelineTracer.Start(ctx, "ChatPipelineService.buildPrompt")
	defer span.End()

	passages, err := s.retriever.Retrieve(ctx, req.Message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("chat.passages", len(passages)))

	logExcerpt := ""
	if req.IncludeLogs && s.logs != nil {
		logExcerpt = s.logs.Filtered()
	}

	promptText, err := prompt.Build(req.Message, passages, logExcerpt, req.Template)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt build failed")
		return "", err
	}

	slog.Debug("Built generation prompt",
		"passages", len(passages),
		"logs_included", logExcerpt != "",
		"prompt_length", len(promptText),
	)
	return promptText, nil
}
