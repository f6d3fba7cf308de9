// Package extract implements the generic "prompt + schema (+optional
// image) -> validated typed result" primitive on top of the provider
// router. The provider's output is parsed and re-validated against the
// abstract schema; a provider's own claim of compliance is never trusted.
package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/llm"
	"github.com/ledgerline/ledgerline/internal/schema"
)

// previewLimit bounds how much of an offending payload is attached to an
// error. Full payloads never leave the engine.
const previewLimit = 240

// Usage carries per-call accounting for activity-log metadata.
type Usage struct {
	Provider   string
	TokensUsed int
}

// Request is one extraction call.
type Request struct {
	Prompt      string
	Schema      *schema.Schema
	Image       *llm.Image
	Temperature float32
	MaxTokens   int32
}

// ParseError means the model returned text that was not valid JSON.
type ParseError struct {
	Provider string
	Preview  string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: parse model output (provider %s): %v; payload preview: %s", e.Provider, e.Err, e.Preview)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means parsed output did not match the abstract schema.
type SchemaError struct {
	Provider string
	Preview  string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("extract: schema validation (provider %s): %v; payload preview: %s", e.Provider, e.Err, e.Preview)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Router is the subset of the provider router the engine depends on.
type Router interface {
	GenerateStructured(ctx context.Context, req llm.Request) (llm.Response, error)
	GenerateText(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Engine is stateless: every call is fully determined by its inputs.
type Engine struct {
	router Router
}

// NewEngine builds an engine over the given router.
func NewEngine(router Router) *Engine {
	return &Engine{router: router}
}

// Extract runs a structured call and returns the decoded object after
// validating it against req.Schema. Each provider rewrites the schema
// into its own dialect at call time; nothing is cached across providers.
func (e *Engine) Extract(ctx context.Context, req Request) (map[string]any, Usage, error) {
	value, usage, err := e.extractValue(ctx, req)
	if err != nil {
		return nil, usage, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, usage, &SchemaError{
			Provider: usage.Provider,
			Preview:  previewValue(value),
			Err:      fmt.Errorf("expected JSON object, got %T", value),
		}
	}
	return obj, usage, nil
}

// ExtractValue is Extract without the top-level object requirement, for
// schemas whose root is an array.
func (e *Engine) ExtractValue(ctx context.Context, req Request) (any, Usage, error) {
	return e.extractValue(ctx, req)
}

func (e *Engine) extractValue(ctx context.Context, req Request) (any, Usage, error) {
	var usage Usage
	resp, err := e.router.GenerateStructured(ctx, llm.Request{
		Prompt:      req.Prompt,
		Schema:      req.Schema,
		Image:       req.Image,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		// Parse and validation failures are provider failures: running
		// them inside the router's per-attempt path makes bad output from
		// one provider fall through to the next instead of failing the
		// whole call.
		Check: func(resp llm.Response) error {
			usage = Usage{Provider: resp.Provider, TokensUsed: resp.TokensUsed}
			_, cerr := e.parseAndValidate(req, resp)
			return cerr
		},
	})
	if err != nil {
		return nil, usage, fmt.Errorf("extract: %w", err)
	}
	usage = Usage{Provider: resp.Provider, TokensUsed: resp.TokensUsed}

	// Stubbed routers in tests may skip the Check callback, so the
	// accepted response is parsed and validated here regardless.
	value, err := e.parseAndValidate(req, resp)
	if err != nil {
		return nil, usage, err
	}
	return value, usage, nil
}

// parseAndValidate turns raw provider text into a schema-checked value.
// Failures are wrapped as ProviderError so the router treats them as
// attempt failures; the ParseError/SchemaError detail stays reachable
// through errors.As.
func (e *Engine) parseAndValidate(req Request, resp llm.Response) (any, error) {
	clean := llm.CleanModelJSON(resp.Text)

	var value any
	if err := json.Unmarshal([]byte(clean), &value); err != nil {
		return nil, &llm.ProviderError{
			Provider: resp.Provider,
			Kind:     llm.KindBadJSON,
			Err:      &ParseError{Provider: resp.Provider, Preview: preview(clean), Err: err},
		}
	}

	if req.Schema != nil {
		if err := req.Schema.Validate(value); err != nil {
			return nil, &llm.ProviderError{
				Provider: resp.Provider,
				Kind:     llm.KindSchemaValidation,
				Err:      &SchemaError{Provider: resp.Provider, Preview: preview(clean), Err: err},
			}
		}
	}

	return value, nil
}

func preview(payload string) string {
	if len(payload) > previewLimit {
		return payload[:previewLimit] + "..."
	}
	return payload
}

func previewValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return preview(string(b))
}
