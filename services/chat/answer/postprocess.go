// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package answer implements the response post-processor: answer-prefix
// normalization, citation ranking and marker insertion, and the chunk
// splitter used for pseudo-streamed delivery.
//
// Everything in this package is a pure function over immutable text.
// The step order inside Process is load-bearing: the prefix is stripped
// before citation spans are validated, and markers are inserted from the
// rightmost span leftward so earlier insertions never shift offsets that
// are still pending.
package answer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
)

// answerMarker is the generation artifact stripped by NormalizeAnswer.
// Some models emit a bare leading "Answer:" label, occasionally more
// than once, despite the prompt asking them not to.
const answerMarker = "Answer:"

// MalformedCitationError reports a citation span that falls outside the
// bounds of the normalized answer text. The offending citation is
// dropped rather than risking an out-of-bounds marker insertion.
type MalformedCitationError struct {
	Start      int
	End        int
	TextLength int
}

// Error implements the error interface for MalformedCitationError.
func (e *MalformedCitationError) Error() string {
	return fmt.Sprintf("citation span [%d,%d) outside answer text of length %d",
		e.Start, e.End, e.TextLength)
}

// NormalizeAnswer strips "Answer:" label artifacts from generated text.
//
// # Description
//
// If the marker occurs anywhere in the text, the text is split on every
// occurrence and the first segment whose trimmed content is non-empty is
// returned. If every segment trims to empty, the second segment (trimmed)
// is returned as a fallback; this degenerate branch reproduces the
// long-standing behavior for responses that are nothing but labels, and
// is deliberately kept rather than simplified. Without the marker the
// text is returned trimmed of surrounding whitespace.
//
// The function is idempotent: the returned segment never contains the
// marker, so a second pass is a no-op.
//
// # Examples
//
//	NormalizeAnswer("Answer: Paris is the capital. Answer: It is in France.")
//	// => "Paris is the capital."
func NormalizeAnswer(raw string) string {
	if !strings.Contains(raw, answerMarker) {
		return strings.TrimSpace(raw)
	}
	segments := strings.Split(raw, answerMarker)
	for _, seg := range segments {
		if trimmed := strings.TrimSpace(seg); trimmed != "" {
			return trimmed
		}
	}
	// All segments empty. Split always yields at least two segments when
	// the marker is present, so index 1 is safe.
	return strings.TrimSpace(segments[1])
}

// Process turns a raw generation and optional citation data into a
// finalized AnswerDraft.
//
// # Description
//
// Steps, in order:
//
//  1. Normalize the text (strip "Answer:" artifacts, trim whitespace).
//  2. Validate each span against the normalized text; spans out of
//     bounds are dropped (see MalformedCitationError). A span with
//     several source locators fans out into one citation per locator,
//     all sharing the span.
//  3. Sort citations ascending by start offset and assign 1-based
//     numbers; classify each locator as "Log" when it contains "log"
//     (case-insensitive), otherwise "Knowledge Base".
//  4. Insert " [<number>]" markers immediately after each span's end
//     offset, processing spans in descending start order so insertions
//     never invalidate offsets still to be processed.
//
// # Inputs
//
//   - raw: The generation text as returned by the collaborator.
//   - spans: Structured citation data from the combined call; nil for
//     the text-only pipelines, which skips steps 2-4 entirely.
//
// # Outputs
//
//   - datatypes.AnswerDraft: Marker-annotated text with citations
//     ordered by number ascending. With no (valid) spans the draft is
//     the normalized text and an empty citation list.
func Process(raw string, spans []datatypes.CitationSpan) datatypes.AnswerDraft {
	text := NormalizeAnswer(raw)
	if len(spans) == 0 {
		return datatypes.AnswerDraft{RawText: text}
	}

	runes := []rune(text)
	citations := extractCitations(runes, spans)
	if len(citations) == 0 {
		return datatypes.AnswerDraft{RawText: text}
	}

	return datatypes.AnswerDraft{
		RawText:   insertMarkers(runes, citations),
		Citations: citations,
	}
}

// extractCitations validates spans against the normalized text, fans
// them out per locator, and assigns ranks and source labels.
func extractCitations(text []rune, spans []datatypes.CitationSpan) []datatypes.Citation {
	var citations []datatypes.Citation
	for _, span := range spans {
		if span.Start < 0 || span.End < span.Start || span.End > len(text) {
			err := &MalformedCitationError{Start: span.Start, End: span.End, TextLength: len(text)}
			slog.Warn("Dropping malformed citation", "error", err, "cited_text", span.CitedText)
			continue
		}
		locators := span.Locators
		if len(locators) == 0 {
			// Keep the span visible even without a locator; it still
			// marks attributed text.
			locators = []string{""}
		}
		for _, loc := range locators {
			citations = append(citations, datatypes.Citation{
				Start:       span.Start,
				End:         span.End,
				CitedText:   span.CitedText,
				SourceLabel: loc,
			})
		}
	}

	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].Start < citations[j].Start
	})
	for i := range citations {
		citations[i].Number = i + 1
		citations[i].SourceKind = classifySource(citations[i].SourceLabel)
	}
	return citations
}

// classifySource buckets a source locator into "Log" or "Knowledge Base".
func classifySource(locator string) string {
	if strings.Contains(strings.ToLower(locator), "log") {
		return datatypes.SourceKindLog
	}
	return datatypes.SourceKindKnowledgeBase
}

// insertMarkers writes " [<number>]" after each citation's end offset.
//
// Descending start order is the correctness invariant here: an insertion
// shifts every offset to its right, so the rightmost span must be
// processed first for the remaining offsets to stay valid. Citations
// sharing a span are processed in descending number order so the final
// text reads "[1] [2]" left to right.
func insertMarkers(text []rune, citations []datatypes.Citation) string {
	ordered := make([]datatypes.Citation, len(citations))
	copy(ordered, citations)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start > ordered[j].Start
		}
		return ordered[i].Number > ordered[j].Number
	})

	for _, c := range ordered {
		marker := []rune(fmt.Sprintf(" [%d]", c.Number))
		next := make([]rune, 0, len(text)+len(marker))
		next = append(next, text[:c.End]...)
		next = append(next, marker...)
		next = append(next, text[c.End:]...)
		text = next
	}
	return string(text)
}
