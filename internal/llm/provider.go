// Package llm abstracts the large-language-model backends behind a single
// provider interface with ordered fallback. Model output is treated as
// untrusted text everywhere; callers validate it downstream.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/schema"
)

// ErrorKind classifies a provider failure. Every kind triggers fallback to
// the next provider; the distinction matters for diagnostics and logging.
type ErrorKind string

const (
	// KindTransient covers network errors and timeouts.
	KindTransient ErrorKind = "transient"
	// KindRateLimited covers HTTP 429 style rejections.
	KindRateLimited ErrorKind = "rate_limited"
	// KindEmptyResponse means the call succeeded but carried no text.
	KindEmptyResponse ErrorKind = "empty_response"
	// KindBadJSON means the response text was not parseable JSON.
	KindBadJSON ErrorKind = "bad_json"
	// KindSchemaValidation means parsed output did not match the contract.
	KindSchemaValidation ErrorKind = "schema_validation"
	// KindUnavailable means the provider rejected the request outright
	// (bad credentials, unknown model).
	KindUnavailable ErrorKind = "unavailable"
)

// ErrNoProviders is returned when the router holds zero configured
// providers; no network call is attempted in that case.
var ErrNoProviders = errors.New("llm: no providers available")

// ProviderError wraps a single provider attempt failure with its kind.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Image is an inline image or document payload attached to a request.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request is one immutable model call. Schema is the abstract schema for
// structured calls and nil for free-text calls.
type Request struct {
	Prompt      string
	Schema      *schema.Schema
	Image       *Image
	Temperature float32
	MaxTokens   int32

	// Check inspects a provider response before the router accepts it. A
	// non-nil return counts as a failure of that provider attempt and
	// triggers fallback to the next provider; this is how parse and
	// schema-validation failures participate in fallback. Nil accepts any
	// response. Providers themselves ignore this field.
	Check func(Response) error
}

// Response is the outcome of one provider attempt. Text is raw model
// output; it has not been parsed or validated.
type Response struct {
	Text       string
	Provider   string
	TokensUsed int
}

// Provider is one configured LLM backend.
type Provider interface {
	// Name identifies the provider ("gemini", "openai").
	Name() string

	// GenerateStructured runs a schema-constrained call. The provider
	// rewrites the abstract schema into its own dialect just in time.
	GenerateStructured(ctx context.Context, req Request) (Response, error)

	// GenerateText runs a free-text call.
	GenerateText(ctx context.Context, req Request) (Response, error)
}
