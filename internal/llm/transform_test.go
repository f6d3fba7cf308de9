package llm

import (
	"reflect"
	"testing"
)

func TestGeminiDialectCollapsesNullUnion(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchantName": map[string]any{
				"type":        []any{"string", "null"},
				"description": "merchant",
			},
			"totalAmount": map[string]any{"type": "number"},
		},
		"required":             []any{"totalAmount"},
		"additionalProperties": false,
	}

	out := GeminiDialect{}.Transform(in)

	if out["additionalProperties"] != nil {
		t.Error("additionalProperties should be stripped")
	}

	props := out["properties"].(map[string]any)
	merchant := props["merchantName"].(map[string]any)
	if merchant["type"] != "string" {
		t.Errorf("collapsed type = %v, want string", merchant["type"])
	}
	if merchant["nullable"] != true {
		t.Errorf("nullable = %v, want true", merchant["nullable"])
	}
	if merchant["description"] != "merchant" {
		t.Errorf("description lost: %v", merchant["description"])
	}

	total := props["totalAmount"].(map[string]any)
	if total["type"] != "number" || total["nullable"] != nil {
		t.Errorf("non-nullable field rewritten: %v", total)
	}

	if !reflect.DeepEqual(out["required"], []any{"totalAmount"}) {
		t.Errorf("required = %v, want [totalAmount]", out["required"])
	}
}

func TestGeminiDialectResolvesAnyOf(t *testing.T) {
	in := map[string]any{
		"anyOf": []any{
			map[string]any{"type": "null"},
			map[string]any{"type": "string", "enum": []any{"cash", "credit"}},
		},
		"description": "payment method",
	}

	out := GeminiDialect{}.Transform(in)

	if out["type"] != "string" {
		t.Errorf("type = %v, want string", out["type"])
	}
	if out["nullable"] != true {
		t.Errorf("nullable = %v, want true", out["nullable"])
	}
	if !reflect.DeepEqual(out["enum"], []any{"cash", "credit"}) {
		t.Errorf("enum = %v, want [cash credit]", out["enum"])
	}
	if out["description"] != "payment method" {
		t.Errorf("description = %v, want carried over", out["description"])
	}
}

func TestGeminiDialectInlinesRefs(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"address": map[string]any{"$ref": "#/$defs/address"},
		},
		"$defs": map[string]any{
			"address": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
				},
			},
		},
	}

	out := GeminiDialect{}.Transform(in)

	if out["$defs"] != nil {
		t.Error("$defs should be stripped")
	}
	address := out["properties"].(map[string]any)["address"].(map[string]any)
	if address["type"] != "object" {
		t.Errorf("ref not inlined: %v", address)
	}
	city := address["properties"].(map[string]any)["city"].(map[string]any)
	if city["type"] != "string" {
		t.Errorf("nested ref content lost: %v", city)
	}
}

func TestGeminiDialectIdempotent(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": []any{"string", "null"}},
			"b": map[string]any{"type": "number"},
		},
		"required": []any{"b"},
	}

	once := GeminiDialect{}.Transform(in)
	twice := GeminiDialect{}.Transform(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("transform not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestGeminiDialectNeverEmitsTypeArrays(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": []any{"integer", "null"},
				},
			},
		},
	}

	var walk func(node map[string]any)
	walk = func(node map[string]any) {
		if _, ok := node["type"].([]any); ok {
			t.Errorf("type array leaked: %v", node)
		}
		if props, ok := node["properties"].(map[string]any); ok {
			for _, p := range props {
				if m, ok := p.(map[string]any); ok {
					walk(m)
				}
			}
		}
		if items, ok := node["items"].(map[string]any); ok {
			walk(items)
		}
	}

	walk(GeminiDialect{}.Transform(in))
}

func TestPassthrough(t *testing.T) {
	in := map[string]any{"type": []any{"string", "null"}, "additionalProperties": false}
	out := Passthrough{ProviderName: ProviderOpenAI}.Transform(in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("Passthrough changed input: %v", out)
	}
	if !(Passthrough{ProviderName: ProviderOpenAI}).Supports(ProviderOpenAI) {
		t.Error("Supports(openai) = false, want true")
	}
	if (Passthrough{ProviderName: ProviderOpenAI}).Supports(ProviderGemini) {
		t.Error("Supports(gemini) = true, want false")
	}
}
