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

import "strings"

// chunkTokenLimit is the number of whitespace tokens accumulated before
// a chunk is flushed, absent an earlier sentence boundary.
const chunkTokenLimit = 3

// SplitChunks splits finalized answer text into delivery-sized chunks
// for pseudo-streaming.
//
// # Description
//
// The text is tokenized on whitespace. Tokens accumulate into a buffer
// that is flushed as one chunk when it reaches chunkTokenLimit tokens or
// when the most recently added token ends a sentence (".", "!", "?").
// A trailing partial buffer is flushed as the final chunk.
//
// Joining the returned chunks with single spaces reconstructs the
// whitespace-normalized answer text exactly.
//
// # Inputs
//
//   - text: Finalized answer text (markers already inserted).
//
// # Outputs
//
//   - []string: Ordered chunks; empty for whitespace-only input.
func SplitChunks(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(tokens)+chunkTokenLimit-1)/chunkTokenLimit)
	buf := make([]string, 0, chunkTokenLimit)
	for _, tok := range tokens {
		buf = append(buf, tok)
		if len(buf) >= chunkTokenLimit || endsSentence(tok) {
			chunks = append(chunks, strings.Join(buf, " "))
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, " "))
	}
	return chunks
}

// endsSentence reports whether a token ends with sentence punctuation.
func endsSentence(tok string) bool {
	if tok == "" {
		return false
	}
	switch tok[len(tok)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
