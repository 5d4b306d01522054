// Package bedrock adapts the AWS Bedrock retrieval and generation
// services behind narrow interfaces. The rest of the repository treats
// both as opaque collaborators reachable over a network call; nothing
// outside this package imports the AWS SDK.
package bedrock

import (
	"context"
	"fmt"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
)

// SamplingParams carries generation sampling knobs. Nil fields fall
// back to the defaults below.
type SamplingParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxGenLen   *int32   `json:"max_gen_len"`
}

// Sampling defaults, matching the values the service has always used.
const (
	DefaultTemperature float32 = 0.7
	DefaultTopP        float32 = 0.9
	DefaultMaxGenLen   int32   = 512
)

// StreamCallback receives one incremental text delta per call. Returning
// a non-nil error stops consumption of the underlying event stream.
type StreamCallback func(delta string) error

// Retriever returns relevance-ranked passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]datatypes.Passage, error)
}

// Generator produces text for a prompt, either as one complete string
// or as a lazy sequence of deltas. Implementations do not retry; retry
// policy belongs to callers.
type Generator interface {
	Generate(ctx context.Context, prompt string, params SamplingParams) (string, error)
	GenerateStream(ctx context.Context, prompt string, params SamplingParams, cb StreamCallback) error
}

// Combined performs retrieval and generation as one managed call and
// returns structured citation data alongside the text.
type Combined interface {
	RetrieveAndGenerate(ctx context.Context, query string) (*GenerationResult, error)
}

// GenerationResult is the output of a combined retrieve-and-generate
// call: the raw generated text plus citation spans into it.
type GenerationResult struct {
	Text      string
	Citations []datatypes.CitationSpan
}

// RetrievalError wraps failures of the knowledge-base retrieval call.
type RetrievalError struct {
	Message string
	Err     error
}

// Error implements the error interface for RetrievalError.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval error: %s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError wraps failures of the model invocation call.
type GenerationError struct {
	Message string
	Err     error
}

// Error implements the error interface for GenerationError.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation error: %s: %v", e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error { return e.Err }
