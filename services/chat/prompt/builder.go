// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt renders generation prompts from retrieved passages and
// optional operational-log context. Building is a pure function: no I/O,
// no side effects, deterministic given its inputs.
package prompt

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
)

// Placeholders recognized in templates. ContextPlaceholder is mandatory
// in custom templates; QuestionPlaceholder is optional (a custom
// template may embed the question literally instead).
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

// logHeading labels the operational-log excerpt inside the context blob
// so the model can distinguish it from knowledge-base passages.
const logHeading = "Recent application logs:"

// defaultTemplate states the context, repeats the question, and asks for
// exactly one unlabeled answer. The "no leading label" instruction
// reduces (but does not eliminate) the "Answer:" artifacts handled by
// the post-processor.
const defaultTemplate = `Context information:
{context}

Question: {question}

Answer the question based on the context above. Give exactly one concise
answer, without a leading label such as "Answer:".`

// Build renders a complete generation prompt.
//
// # Description
//
// Passage texts are concatenated in the order received (they arrive
// relevance-ranked; Build does not re-rank), separated by blank lines.
// A non-empty logExcerpt is appended under a labeled heading. The
// resulting context blob is substituted into the template.
//
// A custom template must contain {context}; it is substituted verbatim
// and the rest of the template is left intact. {question} is substituted
// too when present. With an empty template the default template is used.
//
// # Inputs
//
//   - query: The user's question.
//   - passages: Retrieved passages, relevance-ranked.
//   - logExcerpt: Filtered log text; empty to omit the log section.
//   - template: Template override, or "" for the default.
//
// # Outputs
//
//   - string: The rendered prompt.
//   - error: Non-nil when a custom template lacks {context}.
func Build(query string, passages []datatypes.Passage, logExcerpt string, template string) (string, error) {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	context := strings.Join(texts, "\n\n")

	if logExcerpt != "" {
		if context != "" {
			context += "\n\n"
		}
		context += logHeading + "\n" + logExcerpt
	}

	if template == "" {
		template = defaultTemplate
	} else if !strings.Contains(template, ContextPlaceholder) {
		return "", fmt.Errorf("prompt template is missing the %s placeholder", ContextPlaceholder)
	}

	rendered := strings.ReplaceAll(template, ContextPlaceholder, context)
	rendered = strings.ReplaceAll(rendered, QuestionPlaceholder, query)
	return rendered, nil
}
