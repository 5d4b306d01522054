package bedrock

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var kbTracer = otel.Tracer("kodiak.bedrock.knowledgebase")

// Compile-time interface implementation checks.
var (
	_ Retriever = (*KnowledgeBaseClient)(nil)
	_ Combined  = (*KnowledgeBaseClient)(nil)
)

// agentRuntimeAPI is the slice of the Bedrock agent runtime client this
// package uses. Narrowed for testability.
type agentRuntimeAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput,
		optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput,
		optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// KnowledgeBaseClient calls the managed knowledge base, either for
// retrieval only (two-step pipeline) or for the combined
// retrieve-and-generate operation that also returns citations.
//
// Safe for concurrent use.
type KnowledgeBaseClient struct {
	api             agentRuntimeAPI
	knowledgeBaseID string
	modelARN        string
	resultCount     int32
}

// NewKnowledgeBaseClient creates a client for the given knowledge base.
//
// resultCount caps how many passages a retrieval returns; observed
// useful values are 1, 3, and 5. Values below 1 are coerced to 5.
func NewKnowledgeBaseClient(cfg aws.Config, knowledgeBaseID, modelARN string, resultCount int32) *KnowledgeBaseClient {
	if resultCount < 1 {
		slog.Warn("Invalid retrieval result count, defaulting to 5", "result_count", resultCount)
		resultCount = 5
	}
	slog.Info("Initializing knowledge base client",
		"knowledge_base_id", knowledgeBaseID,
		"model_arn", modelARN,
		"result_count", resultCount,
	)
	return &KnowledgeBaseClient{
		api:             bedrockagentruntime.NewFromConfig(cfg),
		knowledgeBaseID: knowledgeBaseID,
		modelARN:        modelARN,
		resultCount:     resultCount,
	}
}

// Retrieve implements the Retriever interface.
//
// Returns passages in the relevance order the knowledge base produced;
// callers must not re-rank them.
func (c *KnowledgeBaseClient) Retrieve(ctx context.Context, query string) ([]datatypes.Passage, error) {
	ctx, span := kbTracer.Start(ctx, "KnowledgeBaseClient.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("kb.id", c.knowledgeBaseID),
		attribute.Int("kb.result_count", int(c.resultCount)),
	)

	out, err := c.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(c.knowledgeBaseID),
		RetrievalQuery: &agenttypes.KnowledgeBaseQuery{
			Text: aws.String(query),
		},
		RetrievalConfiguration: &agenttypes.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &agenttypes.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(c.resultCount),
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return nil, &RetrievalError{Message: "knowledge base retrieve failed", Err: err}
	}

	passages := make([]datatypes.Passage, 0, len(out.RetrievalResults))
	for _, result := range out.RetrievalResults {
		if result.Content == nil {
			continue
		}
		passages = append(passages, datatypes.Passage{
			Text:          aws.ToString(result.Content.Text),
			SourceLocator: locatorFromLocation(result.Location),
		})
	}

	span.SetAttributes(attribute.Int("kb.passages", len(passages)))
	return passages, nil
}

// RetrieveAndGenerate implements the Combined interface.
//
// The returned citation spans are copied verbatim from the service
// response; the post-processor owns validation and ranking.
func (c *KnowledgeBaseClient) RetrieveAndGenerate(ctx context.Context, query string) (*GenerationResult, error) {
	ctx, span := kbTracer.Start(ctx, "KnowledgeBaseClient.RetrieveAndGenerate")
	defer span.End()
	span.SetAttributes(attribute.String("kb.id", c.knowledgeBaseID))

	out, err := c.api.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &agenttypes.RetrieveAndGenerateInput{
			Text: aws.String(query),
		},
		RetrieveAndGenerateConfiguration: &agenttypes.RetrieveAndGenerateConfiguration{
			Type: agenttypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &agenttypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(c.knowledgeBaseID),
				ModelArn:        aws.String(c.modelARN),
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve-and-generate failed")
		return nil, &GenerationError{Message: "retrieve-and-generate failed", Err: err}
	}

	result := &GenerationResult{}
	if out.Output != nil {
		result.Text = aws.ToString(out.Output.Text)
	}
	result.Citations = convertCitations(out.Citations)

	span.SetAttributes(
		attribute.Int("kb.text_length", len(result.Text)),
		attribute.Int("kb.citations", len(result.Citations)),
	)
	return result, nil
}

// convertCitations maps service citation entries to CitationSpans.
// Entries without a text span are skipped; they cite nothing visible.
func convertCitations(citations []agenttypes.Citation) []datatypes.CitationSpan {
	var spans []datatypes.CitationSpan
	for _, cit := range citations {
		if cit.GeneratedResponsePart == nil || cit.GeneratedResponsePart.TextResponsePart == nil {
			continue
		}
		part := cit.GeneratedResponsePart.TextResponsePart
		if part.Span == nil {
			continue
		}

		span := datatypes.CitationSpan{
			Start:     int(aws.ToInt32(part.Span.Start)),
			End:       int(aws.ToInt32(part.Span.End)),
			CitedText: aws.ToString(part.Text),
		}
		for _, ref := range cit.RetrievedReferences {
			if loc := locatorFromLocation(ref.Location); loc != "" {
				span.Locators = append(span.Locators, loc)
			}
		}
		spans = append(spans, span)
	}
	return spans
}

// locatorFromLocation extracts the most specific source locator from a
// retrieval result location, preferring URI-like fields over the bare
// location type tag.
func locatorFromLocation(loc *agenttypes.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	if loc.S3Location != nil && aws.ToString(loc.S3Location.Uri) != "" {
		return aws.ToString(loc.S3Location.Uri)
	}
	if loc.WebLocation != nil && aws.ToString(loc.WebLocation.Url) != "" {
		return aws.ToString(loc.WebLocation.Url)
	}
	return string(loc.Type)
}
