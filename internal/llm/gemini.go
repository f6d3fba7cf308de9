package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ProviderGemini is the registry name of the Gemini backend.
const ProviderGemini = "gemini"

// GeminiProvider calls the Gemini API with native constrained output.
// Gemini's schema dialect cannot express type unions, so the abstract
// schema is rewritten through GeminiDialect on every structured call.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	transformer Transformer
}

// NewGeminiProvider constructs the provider with an explicit client. The
// client lifecycle belongs to the caller (process init/shutdown); nothing
// is constructed at import time.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiProvider: create genai client: %w", err)
	}
	return &GeminiProvider{
		client:      client,
		model:       model,
		transformer: GeminiDialect{},
	}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// GenerateStructured implements Provider.
func (p *GeminiProvider) GenerateStructured(ctx context.Context, req Request) (Response, error) {
	cfg := p.baseConfig(req)
	if req.Schema != nil {
		dialect := p.transformer.Transform(req.Schema.JSONSchema())
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(dialect)
	}
	return p.generate(ctx, req, cfg)
}

// GenerateText implements Provider.
func (p *GeminiProvider) GenerateText(ctx context.Context, req Request) (Response, error) {
	return p.generate(ctx, req, p.baseConfig(req))
}

func (p *GeminiProvider) baseConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	return cfg
}

func (p *GeminiProvider) generate(ctx context.Context, req Request, cfg *genai.GenerateContentConfig) (Response, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Image != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.Image.MIMEType,
				Data:     req.Image.Data,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return Response{}, &ProviderError{Provider: ProviderGemini, Kind: classifyGeminiError(ctx, err), Err: err}
	}

	text := resp.Text()
	if text == "" {
		return Response{}, &ProviderError{
			Provider: ProviderGemini,
			Kind:     KindEmptyResponse,
			Err:      errors.New("empty response from model"),
		}
	}

	out := Response{Text: text, Provider: ProviderGemini}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func classifyGeminiError(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil {
		return KindTransient
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return KindRateLimited
		case apiErr.Code == 401 || apiErr.Code == 403 || apiErr.Code == 404:
			return KindUnavailable
		case apiErr.Code >= 500:
			return KindTransient
		}
	}
	return KindTransient
}

// toGenaiSchema converts a Gemini-dialect schema map into the SDK's
// typed schema value.
func toGenaiSchema(node map[string]any) *genai.Schema {
	s := &genai.Schema{}

	switch t, _ := node["type"].(string); t {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "number":
		s.Type = genai.TypeNumber
	case "integer":
		s.Type = genai.TypeInteger
	case "boolean":
		s.Type = genai.TypeBoolean
	}

	if d, ok := node["description"].(string); ok {
		s.Description = d
	}
	if b, ok := node["nullable"].(bool); ok && b {
		s.Nullable = genai.Ptr(true)
	}
	if enum, ok := node["enum"].([]any); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		s.Properties = map[string]*genai.Schema{}
		for _, name := range sortedKeys(props) {
			if child, ok := props[name].(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(child)
			}
		}
	}
	if req, ok := node["required"].([]any); ok {
		for _, v := range req {
			if str, ok := v.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}

	return s
}
