package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/llm"
	"github.com/ledgerline/ledgerline/internal/schema"
)

// stubRouter returns a canned response for every call.
type stubRouter struct {
	resp llm.Response
	err  error
}

func (s *stubRouter) GenerateStructured(_ context.Context, _ llm.Request) (llm.Response, error) {
	return s.resp, s.err
}

func (s *stubRouter) GenerateText(_ context.Context, _ llm.Request) (llm.Response, error) {
	return s.resp, s.err
}

func testSchema() *schema.Schema {
	return schema.NewObject(
		schema.Prop("name", schema.Str("")),
		schema.Prop("amount", schema.Num("")),
	)
}

func TestExtractValidResponse(t *testing.T) {
	router := &stubRouter{resp: llm.Response{
		Text:       "```json\n{\"name\": \"Cafe\", \"amount\": 12.5}\n```",
		Provider:   "gemini",
		TokensUsed: 340,
	}}
	engine := NewEngine(router)

	obj, usage, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if obj["name"] != "Cafe" || obj["amount"] != 12.5 {
		t.Errorf("obj = %v", obj)
	}
	if usage.Provider != "gemini" || usage.TokensUsed != 340 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestExtractParseError(t *testing.T) {
	router := &stubRouter{resp: llm.Response{Text: "not json at all", Provider: "openai"}}
	engine := NewEngine(router)

	_, usage, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	var pErr *ParseError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if pErr.Provider != "openai" {
		t.Errorf("provider = %s, want openai", pErr.Provider)
	}
	if usage.Provider != "openai" {
		t.Errorf("usage.Provider = %s, want preserved for accounting", usage.Provider)
	}
}

func TestExtractSchemaError(t *testing.T) {
	router := &stubRouter{resp: llm.Response{Text: `{"name": "Cafe"}`, Provider: "gemini"}}
	engine := NewEngine(router)

	_, _, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	var sErr *SchemaError
	if !errors.As(err, &sErr) {
		t.Fatalf("error = %v, want SchemaError", err)
	}
	if !strings.Contains(sErr.Preview, "Cafe") {
		t.Errorf("preview should carry the offending payload, got %q", sErr.Preview)
	}
}

func TestExtractPreviewTruncated(t *testing.T) {
	long := `{"name": "` + strings.Repeat("x", 1000) + `"}`
	router := &stubRouter{resp: llm.Response{Text: long, Provider: "gemini"}}
	engine := NewEngine(router)

	_, _, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	var sErr *SchemaError
	if !errors.As(err, &sErr) {
		t.Fatalf("error = %v, want SchemaError", err)
	}
	if len(sErr.Preview) > previewLimit+len("...") {
		t.Errorf("preview length = %d, want at most %d", len(sErr.Preview), previewLimit+3)
	}
}

func TestExtractRejectsArrayRoot(t *testing.T) {
	router := &stubRouter{resp: llm.Response{Text: `[1, 2]`, Provider: "gemini"}}
	engine := NewEngine(router)

	_, _, err := engine.Extract(context.Background(), Request{Prompt: "x"})
	var sErr *SchemaError
	if !errors.As(err, &sErr) {
		t.Fatalf("error = %v, want SchemaError for non-object root", err)
	}
}

func TestExtractValueAllowsArrayRoot(t *testing.T) {
	router := &stubRouter{resp: llm.Response{Text: `[{"name": "a", "amount": 1}]`, Provider: "gemini"}}
	engine := NewEngine(router)

	value, _, err := engine.ExtractValue(context.Background(), Request{
		Prompt: "x",
		Schema: schema.NewArray(testSchema()),
	})
	if err != nil {
		t.Fatalf("ExtractValue() error = %v", err)
	}
	arr, ok := value.([]any)
	if !ok || len(arr) != 1 {
		t.Errorf("value = %v, want one-element array", value)
	}
}

// cannedProvider is a real llm.Provider returning fixed text, for tests
// that exercise the engine through the actual fallback router.
type cannedProvider struct {
	name  string
	text  string
	calls int
}

func (p *cannedProvider) Name() string { return p.name }

func (p *cannedProvider) GenerateStructured(_ context.Context, _ llm.Request) (llm.Response, error) {
	p.calls++
	return llm.Response{Text: p.text, Provider: p.name}, nil
}

func (p *cannedProvider) GenerateText(_ context.Context, _ llm.Request) (llm.Response, error) {
	p.calls++
	return llm.Response{Text: p.text, Provider: p.name}, nil
}

func TestExtractFallsBackWhenFirstProviderReturnsBadJSON(t *testing.T) {
	first := &cannedProvider{name: "gemini", text: "this is not json"}
	second := &cannedProvider{name: "openai", text: `{"name": "Cafe", "amount": 12.5}`}
	engine := NewEngine(llm.NewRouter(zerolog.Nop(), first, second))

	obj, usage, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	if err != nil {
		t.Fatalf("Extract() error = %v, want success via second provider", err)
	}
	if obj["name"] != "Cafe" {
		t.Errorf("obj = %v", obj)
	}
	if usage.Provider != "openai" {
		t.Errorf("usage.Provider = %s, want openai", usage.Provider)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestExtractFallsBackWhenFirstProviderViolatesSchema(t *testing.T) {
	first := &cannedProvider{name: "gemini", text: `{"name": "Cafe"}`}
	second := &cannedProvider{name: "openai", text: `{"name": "Cafe", "amount": 12.5}`}
	engine := NewEngine(llm.NewRouter(zerolog.Nop(), first, second))

	_, usage, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	if err != nil {
		t.Fatalf("Extract() error = %v, want success via second provider", err)
	}
	if usage.Provider != "openai" {
		t.Errorf("usage.Provider = %s, want openai", usage.Provider)
	}
	if second.calls != 1 {
		t.Errorf("second provider calls = %d, want 1", second.calls)
	}
}

func TestExtractAllProvidersBadJSON(t *testing.T) {
	first := &cannedProvider{name: "gemini", text: "nope"}
	second := &cannedProvider{name: "openai", text: "also nope"}
	engine := NewEngine(llm.NewRouter(zerolog.Nop(), first, second))

	_, _, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	var pErr *ParseError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if pErr.Provider != "openai" {
		t.Errorf("provider = %s, want last provider openai", pErr.Provider)
	}
	var provErr *llm.ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != llm.KindBadJSON {
		t.Errorf("error = %v, want ProviderError kind bad_json", err)
	}
}

func TestExtractRouterErrorPassedThrough(t *testing.T) {
	router := &stubRouter{err: llm.ErrNoProviders}
	engine := NewEngine(router)

	_, _, err := engine.Extract(context.Background(), Request{Prompt: "x", Schema: testSchema()})
	if !errors.Is(err, llm.ErrNoProviders) {
		t.Errorf("error = %v, want wrapped ErrNoProviders", err)
	}
}
