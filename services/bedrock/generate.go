package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	runtimetypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var modelTracer = otel.Tracer("kodiak.bedrock.model")

// Compile-time interface implementation check.
var _ Generator = (*ModelClient)(nil)

// modelInvokerAPI is the slice of the Bedrock runtime client this
// package uses. Narrowed for testability.
type modelInvokerAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// llamaRequest is the model invocation body for the llama family.
type llamaRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	MaxGenLen   int32   `json:"max_gen_len"`
}

// llamaResponse is the model response body. Streaming chunks decode to
// the same shape, with Generation carrying the incremental delta.
type llamaResponse struct {
	Generation string `json:"generation"`
	StopReason string `json:"stop_reason,omitempty"`
}

// ModelClient invokes a Bedrock text model directly, one-shot or
// streaming. Implements the Generator interface. Safe for concurrent
// use.
type ModelClient struct {
	api     modelInvokerAPI
	modelID string
}

// NewModelClient creates a client for the given model identifier.
func NewModelClient(cfg aws.Config, modelID string) *ModelClient {
	slog.Info("Initializing model client", "model_id", modelID)
	return &ModelClient{
		api:     bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}
}

// Generate implements the Generator interface. It invokes the model
// synchronously and returns the complete generated text.
func (c *ModelClient) Generate(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	ctx, span := modelTracer.Start(ctx, "ModelClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.modelID))

	body, err := json.Marshal(buildLlamaRequest(prompt, params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &GenerationError{Message: "failed to marshal invocation body", Err: err}
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invoke failed")
		slog.Error("Model invocation failed", "model_id", c.modelID, "error", err)
		return "", &GenerationError{Message: "model invocation failed", Err: err}
	}

	var resp llamaResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &GenerationError{Message: "failed to parse model response", Err: err}
	}

	slog.Debug("Model invocation completed",
		"model_id", c.modelID, "stop_reason", resp.StopReason)
	return resp.Generation, nil
}

// GenerateStream implements the Generator interface. It invokes the
// model with a response stream and forwards each decoded delta to cb
// as it arrives, with no buffering beyond decoding one event.
//
// A non-nil error from cb stops consumption and is returned unchanged,
// so callers can distinguish their own cancellation from collaborator
// failures (which come back as *GenerationError).
func (c *ModelClient) GenerateStream(ctx context.Context, prompt string, params SamplingParams, cb StreamCallback) error {
	ctx, span := modelTracer.Start(ctx, "ModelClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.modelID))

	body, err := json.Marshal(buildLlamaRequest(prompt, params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &GenerationError{Message: "failed to marshal invocation body", Err: err}
	}

	out, err := c.api.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "streaming invoke failed")
		return &GenerationError{Message: "streaming model invocation failed", Err: err}
	}

	stream := out.GetStream()
	defer stream.Close()

	deltas := 0
	for event := range stream.Events() {
		chunk, ok := event.(*runtimetypes.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		delta, err := decodeChunk(chunk.Value.Bytes)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chunk decode failed")
			return &GenerationError{Message: "failed to decode stream chunk", Err: err}
		}
		if delta == "" {
			continue
		}
		if err := cb(delta); err != nil {
			// Caller stopped consuming; not a collaborator failure.
			return err
		}
		deltas++
	}

	if err := stream.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response stream failed")
		return &GenerationError{Message: "response stream failed", Err: err}
	}

	span.SetAttributes(attribute.Int("llm.deltas", deltas))
	return nil
}

// buildLlamaRequest applies sampling defaults.
func buildLlamaRequest(prompt string, params SamplingParams) llamaRequest {
	req := llamaRequest{
		Prompt:      prompt,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxGenLen:   DefaultMaxGenLen,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxGenLen != nil {
		req.MaxGenLen = *params.MaxGenLen
	}
	return req
}

// decodeChunk extracts the text delta from one streaming payload part.
func decodeChunk(payload []byte) (string, error) {
	var resp llamaResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("malformed stream chunk: %w", err)
	}
	return resp.Generation, nil
}
