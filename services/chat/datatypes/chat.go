// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the chat service.
//
// This file contains the request and response types for the chat endpoints
// together with the answer-synthesis types (Passage, Citation, AnswerDraft)
// shared by the pipeline and the post-processor.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageBytes is the maximum size of a single chat message.
	// Checked in bytes, not runes, to bound memory use.
	MaxMessageBytes = 32 * 1024 // 32KB

	// MaxTemplateBytes is the maximum size of a prompt template override.
	MaxTemplateBytes = 64 * 1024 // 64KB
)

// Pipeline names accepted by the chat endpoints.
const (
	// PipelineCombined performs retrieval and generation as one managed
	// knowledge-base call and returns structured citation data.
	PipelineCombined = "combined"

	// PipelineTwoStep retrieves passages first, then invokes the model
	// with a locally built prompt. No citation data is produced.
	PipelineTwoStep = "twostep"
)

// Source kinds assigned to citations by the post-processor.
const (
	SourceKindLog           = "Log"
	SourceKindKnowledgeBase = "Knowledge Base"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the byte-size cap on string fields tagged
// with `maxbytes` (message content limit).
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// =============================================================================
// Request / Response Types
// =============================================================================

// ChatRequest is the body of POST /v1/chat and POST /v1/chat/stream.
//
// # Fields
//
//   - Message: Required. The user's question. Limited to 32KB.
//   - Template: Optional. A prompt template override. When set, it must
//     contain a {context} placeholder (validated by the prompt builder).
//     Only honored by the two-step pipeline.
//   - Pipeline: Optional. "combined" (default) or "twostep". Requests
//     that set Template or IncludeLogs default to "twostep" instead,
//     since the combined knowledge-base call builds its own prompt.
//   - IncludeLogs: Optional. When true, the filtered operational-log
//     excerpt is appended to the retrieval context (two-step only).
type ChatRequest struct {
	Message     string `json:"message" validate:"required,maxbytes"`
	Template    string `json:"template,omitempty" validate:"omitempty,max=65536"`
	Pipeline    string `json:"pipeline,omitempty" validate:"omitempty,oneof=combined twostep"`
	IncludeLogs bool   `json:"include_logs,omitempty"`
}

// Validate checks the request against its validation rules.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return nil
}

// EffectivePipeline resolves the pipeline to run for this request.
//
// An explicit Pipeline value wins. Otherwise requests that carry a
// template override or ask for log context run two-step, because the
// combined call cannot honor either; everything else runs combined.
func (r *ChatRequest) EffectivePipeline() string {
	if r.Pipeline != "" {
		return r.Pipeline
	}
	if r.Template != "" || r.IncludeLogs {
		return PipelineTwoStep
	}
	return PipelineCombined
}

// ChatResponse is the single-shot answer body.
//
// Citations is omitted when the pipeline produced no citation data.
type ChatResponse struct {
	Response  string            `json:"response"`
	Citations []CitationSummary `json:"citations,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// RefreshResponse is the body of POST /v1/logs/refresh.
type RefreshResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StreamFrame is one wire frame of the streaming response.
//
// Exactly one of Chunk, Error, or Done is populated per frame. The
// stream always terminates with a Done frame; Citations rides on the
// Done frame when the answer carried citation data.
type StreamFrame struct {
	Chunk     string            `json:"chunk,omitempty"`
	Error     string            `json:"error,omitempty"`
	Done      bool              `json:"done,omitempty"`
	Citations []CitationSummary `json:"citations,omitempty"`
}

// =============================================================================
// Answer Synthesis Types
// =============================================================================

// Passage is one retrieved text unit from the knowledge base.
//
// Passages are immutable and arrive relevance-ranked from the retrieval
// collaborator; the pipeline never re-ranks them.
type Passage struct {
	Text          string
	SourceLocator string
}

// CitationSpan is raw citation data as returned by the combined
// retrieve-and-generate call, before ranking and labeling.
//
// Start and End are rune offsets into the normalized answer text, with
// End exclusive. A span referencing several source locators fans out
// into one Citation per locator during post-processing.
type CitationSpan struct {
	Start     int
	End       int
	CitedText string
	Locators  []string
}

// Citation is a ranked, labeled citation record.
//
// Number is the 1-based rank by ascending Start; it matches the order
// citations are encountered reading the answer left to right and is
// stable once assigned. SourceKind is either SourceKindLog or
// SourceKindKnowledgeBase.
type Citation struct {
	Number      int
	Start       int
	End         int
	CitedText   string
	SourceLabel string
	SourceKind  string
}

// CitationSummary is the client-facing citation entry carried on the
// terminal stream frame and the single-shot response.
type CitationSummary struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// AnswerDraft is the post-processed answer: marker-annotated text plus
// citations ordered by number ascending. It lives for one request and
// is discarded once the response is delivered.
type AnswerDraft struct {
	RawText   string
	Citations []Citation
}

// Summaries renders the citation list for client delivery. Each entry
// reads "<Knowledge Base|Log>: <source label>". Returns nil when the
// draft has no citations so JSON omitempty drops the field.
func (d *AnswerDraft) Summaries() []CitationSummary {
	if len(d.Citations) == 0 {
		return nil
	}
	out := make([]CitationSummary, 0, len(d.Citations))
	for _, c := range d.Citations {
		out = append(out, CitationSummary{
			Number: c.Number,
			Text:   fmt.Sprintf("%s: %s", c.SourceKind, c.SourceLabel),
		})
	}
	return out
}
