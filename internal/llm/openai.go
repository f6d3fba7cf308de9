package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ProviderOpenAI is the registry name of the OpenAI backend.
const ProviderOpenAI = "openai"

// OpenAIProvider calls the OpenAI chat completions API. OpenAI accepts
// full JSON Schema in its json_schema response format, so the schema
// transformer is a pass-through.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	transformer Transformer
}

// NewOpenAIProvider constructs the provider. The API key must be present;
// unconfigured providers are filtered out before registration.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("NewOpenAIProvider: api key not configured")
	}
	return &OpenAIProvider{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		transformer: Passthrough{ProviderName: ProviderOpenAI},
	}, nil
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// GenerateStructured implements Provider.
func (p *OpenAIProvider) GenerateStructured(ctx context.Context, req Request) (Response, error) {
	params := p.baseParams(req)
	if req.Schema != nil {
		providerSchema := p.transformer.Transform(req.Schema.JSONSchema())
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "extraction",
					Schema: providerSchema,
				},
			},
		}
	}
	return p.generate(ctx, params)
}

// GenerateText implements Provider.
func (p *OpenAIProvider) GenerateText(ctx context.Context, req Request) (Response, error) {
	return p.generate(ctx, p.baseParams(req))
}

func (p *OpenAIProvider) baseParams(req Request) openai.ChatCompletionNewParams {
	var message openai.ChatCompletionMessageParamUnion
	if req.Image != nil {
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data))
		message = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.Prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		})
	} else {
		message = openai.UserMessage(req.Prompt)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{message},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (p *OpenAIProvider) generate(ctx context.Context, params openai.ChatCompletionNewParams) (Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderOpenAI, Kind: classifyOpenAIError(ctx, err), Err: err}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, &ProviderError{
			Provider: ProviderOpenAI,
			Kind:     KindEmptyResponse,
			Err:      errors.New("empty response from model"),
		}
	}

	return Response{
		Text:       resp.Choices[0].Message.Content,
		Provider:   ProviderOpenAI,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

func classifyOpenAIError(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil {
		return KindTransient
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return KindRateLimited
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403 || apiErr.StatusCode == 404:
			return KindUnavailable
		case apiErr.StatusCode >= 500:
			return KindTransient
		}
	}
	return KindTransient
}
