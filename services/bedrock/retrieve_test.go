package bedrock

import (
	"context"
	"fmt"
	"testing"

	"github.com/AleutianAI/KodiakChat/services/chat/datatypes"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	agenttypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgentRuntime serves canned retrieval and generation responses.
type fakeAgentRuntime struct {
	retrieveOut *bedrockagentruntime.RetrieveOutput
	retrieveErr error
	ragOut      *bedrockagentruntime.RetrieveAndGenerateOutput
	ragErr      error

	lastRetrieve *bedrockagentruntime.RetrieveInput
	lastRAG      *bedrockagentruntime.RetrieveAndGenerateInput
}

func (f *fakeAgentRuntime) Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput,
	optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error) {
	f.lastRetrieve = params
	return f.retrieveOut, f.retrieveErr
}

func (f *fakeAgentRuntime) RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput,
	optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	f.lastRAG = params
	return f.ragOut, f.ragErr
}

func newTestKBClient(api agentRuntimeAPI) *KnowledgeBaseClient {
	return &KnowledgeBaseClient{
		api:             api,
		knowledgeBaseID: "KB123",
		modelARN:        "arn:aws:bedrock:us-east-1::foundation-model/test",
		resultCount:     3,
	}
}

func s3Location(uri string) *agenttypes.RetrievalResultLocation {
	return &agenttypes.RetrievalResultLocation{
		Type:       agenttypes.RetrievalResultLocationTypeS3,
		S3Location: &agenttypes.RetrievalResultS3Location{Uri: aws.String(uri)},
	}
}

func TestRetrieve_ReturnsPassagesInOrder(t *testing.T) {
	api := &fakeAgentRuntime{
		retrieveOut: &bedrockagentruntime.RetrieveOutput{
			RetrievalResults: []agenttypes.KnowledgeBaseRetrievalResult{
				{
					Content:  &agenttypes.RetrievalResultContent{Text: aws.String("most relevant")},
					Location: s3Location("s3://docs/a.md"),
				},
				{
					Content:  &agenttypes.RetrievalResultContent{Text: aws.String("second")},
					Location: s3Location("s3://docs/b.md"),
				},
			},
		},
	}
	client := newTestKBClient(api)

	passages, err := client.Retrieve(context.Background(), "where is hq?")
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, datatypes.Passage{Text: "most relevant", SourceLocator: "s3://docs/a.md"}, passages[0])
	assert.Equal(t, "second", passages[1].Text)

	// The request carries the configured KB identity and result cap.
	assert.Equal(t, "KB123", aws.ToString(api.lastRetrieve.KnowledgeBaseId))
	assert.Equal(t, "where is hq?", aws.ToString(api.lastRetrieve.RetrievalQuery.Text))
	assert.Equal(t, int32(3), aws.ToInt32(
		api.lastRetrieve.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults))
}

func TestRetrieve_SkipsResultsWithoutContent(t *testing.T) {
	api := &fakeAgentRuntime{
		retrieveOut: &bedrockagentruntime.RetrieveOutput{
			RetrievalResults: []agenttypes.KnowledgeBaseRetrievalResult{
				{Location: s3Location("s3://docs/empty.md")},
				{Content: &agenttypes.RetrievalResultContent{Text: aws.String("kept")}},
			},
		},
	}

	passages, err := newTestKBClient(api).Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "kept", passages[0].Text)
}

func TestRetrieve_WrapsFailure(t *testing.T) {
	api := &fakeAgentRuntime{retrieveErr: fmt.Errorf("throttled")}

	_, err := newTestKBClient(api).Retrieve(context.Background(), "q")
	require.Error(t, err)

	var retErr *RetrievalError
	require.ErrorAs(t, err, &retErr)
	assert.ErrorContains(t, err, "throttled")
}

func TestRetrieveAndGenerate_ReturnsTextAndCitations(t *testing.T) {
	api := &fakeAgentRuntime{
		ragOut: &bedrockagentruntime.RetrieveAndGenerateOutput{
			Output: &agenttypes.RetrieveAndGenerateOutput{
				Text: aws.String("Answer: The office is in Anchorage."),
			},
			Citations: []agenttypes.Citation{
				{
					GeneratedResponsePart: &agenttypes.GeneratedResponsePart{
						TextResponsePart: &agenttypes.TextResponsePart{
							Text: aws.String("The office is in Anchorage."),
							Span: &agenttypes.Span{Start: aws.Int32(0), End: aws.Int32(27)},
						},
					},
					RetrievedReferences: []agenttypes.RetrievedReference{
						{Location: s3Location("s3://docs/offices.md")},
					},
				},
			},
		},
	}
	client := newTestKBClient(api)

	result, err := client.RetrieveAndGenerate(context.Background(), "where?")
	require.NoError(t, err)
	assert.Equal(t, "Answer: The office is in Anchorage.", result.Text)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, 0, result.Citations[0].Start)
	assert.Equal(t, 27, result.Citations[0].End)
	assert.Equal(t, []string{"s3://docs/offices.md"}, result.Citations[0].Locators)

	cfg := api.lastRAG.RetrieveAndGenerateConfiguration
	assert.Equal(t, agenttypes.RetrieveAndGenerateTypeKnowledgeBase, cfg.Type)
	assert.Equal(t, "KB123", aws.ToString(cfg.KnowledgeBaseConfiguration.KnowledgeBaseId))
}

func TestRetrieveAndGenerate_WrapsFailure(t *testing.T) {
	api := &fakeAgentRuntime{ragErr: fmt.Errorf("model busy")}

	_, err := newTestKBClient(api).RetrieveAndGenerate(context.Background(), "q")
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
}

func TestConvertCitations_SkipsEntriesWithoutSpan(t *testing.T) {
	citations := []agenttypes.Citation{
		{},
		{GeneratedResponsePart: &agenttypes.GeneratedResponsePart{}},
		{GeneratedResponsePart: &agenttypes.GeneratedResponsePart{
			TextResponsePart: &agenttypes.TextResponsePart{Text: aws.String("spanless")},
		}},
		{GeneratedResponsePart: &agenttypes.GeneratedResponsePart{
			TextResponsePart: &agenttypes.TextResponsePart{
				Span: &agenttypes.Span{Start: aws.Int32(1), End: aws.Int32(4)},
			},
		}},
	}

	spans := convertCitations(citations)
	require.Len(t, spans, 1)
	assert.Equal(t, 1, spans[0].Start)
	assert.Equal(t, 4, spans[0].End)
}

func TestLocatorFromLocation(t *testing.T) {
	assert.Equal(t, "", locatorFromLocation(nil))
	assert.Equal(t, "s3://b/k", locatorFromLocation(s3Location("s3://b/k")))
	assert.Equal(t, "https://example.com/doc", locatorFromLocation(&agenttypes.RetrievalResultLocation{
		Type:        agenttypes.RetrievalResultLocationTypeWeb,
		WebLocation: &agenttypes.RetrievalResultWebLocation{Url: aws.String("https://example.com/doc")},
	}))
	// Falls back to the type tag when no URI-like field is set.
	assert.Equal(t, string(agenttypes.RetrievalResultLocationTypeS3),
		locatorFromLocation(&agenttypes.RetrievalResultLocation{
			Type: agenttypes.RetrievalResultLocationTypeS3,
		}))
}
