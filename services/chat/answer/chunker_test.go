// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package answer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "whitespace only",
			input:    "   \n\t  ",
			expected: nil,
		},
		{
			name:     "fewer tokens than limit flushed as trailing chunk",
			input:    "hello there",
			expected: []string{"hello there"},
		},
		{
			name:     "flush at three tokens",
			input:    "one two three four five six",
			expected: []string{"one two three", "four five six"},
		},
		{
			name:     "sentence punctuation flushes early",
			input:    "Done. now more words",
			expected: []string{"Done.", "now more words"},
		},
		{
			name:     "question and exclamation flush early",
			input:    "Really? Yes! ok",
			expected: []string{"Really?", "Yes!", "ok"},
		},
		{
			name:     "trailing partial buffer flushed",
			input:    "one two three four",
			expected: []string{"one two three", "four"},
		},
		{
			name:     "mixed whitespace collapses",
			input:    "a\n\nb\tc   d",
			expected: []string{"a b c", "d"},
		},
		{
			name:     "citation markers ride inside chunks",
			input:    "The office is in Anchorage. [1]",
			expected: []string{"The office is", "in Anchorage.", "[1]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitChunks(tt.input))
		})
	}
}

func TestSplitChunks_RoundTrip(t *testing.T) {
	// Chunks joined with single spaces reconstruct the whitespace-
	// normalized input exactly.
	inputs := []string{
		"The quick brown fox jumps over the lazy dog.",
		"One. Two! Three? Four five six seven",
		"word",
		"  leading and   trailing   ",
		"Sentence one ends here. Sentence two keeps going for a while longer.",
	}

	for _, input := range inputs {
		chunks := SplitChunks(input)
		rejoined := strings.Join(chunks, " ")
		normalized := strings.Join(strings.Fields(input), " ")
		assert.Equal(t, normalized, rejoined, "input %q", input)
	}
}
