package llm

import "sort"

// Transformer rewrites a canonical JSON Schema document into a provider's
// constrained-output dialect. Implementations must be pure functions:
// identical input always yields identical output, and re-applying a
// transform to its own output must not change it.
type Transformer interface {
	Transform(jsonSchema map[string]any) map[string]any
	Supports(providerName string) bool
}

// Passthrough is the transformer for providers that accept full JSON
// Schema. It returns the input untouched.
type Passthrough struct {
	ProviderName string
}

func (p Passthrough) Transform(jsonSchema map[string]any) map[string]any {
	return jsonSchema
}

func (p Passthrough) Supports(providerName string) bool {
	return providerName == p.ProviderName
}

// GeminiDialect rewrites full JSON Schema into the restricted dialect the
// Gemini constrained-output API accepts:
//
//   - type is always a single string; union-with-null collapses into
//     {type: <non-null>, nullable: true}
//   - anyOf/oneOf/allOf resolve to the first non-null branch, marked
//     nullable if a null branch existed
//   - $ref into definitions/$defs is inlined
//   - $schema and additionalProperties are stripped
//   - enum and description survive unchanged
type GeminiDialect struct{}

func (GeminiDialect) Supports(providerName string) bool {
	return providerName == ProviderGemini
}

func (g GeminiDialect) Transform(jsonSchema map[string]any) map[string]any {
	defs := collectDefinitions(jsonSchema)
	return g.transform(jsonSchema, defs)
}

// rejectedKeys are metadata keys the Gemini dialect does not accept.
var rejectedKeys = map[string]bool{
	"$schema":              true,
	"additionalProperties": true,
	"definitions":          true,
	"$defs":                true,
	"$id":                  true,
}

func collectDefinitions(root map[string]any) map[string]map[string]any {
	defs := map[string]map[string]any{}
	for _, key := range []string{"definitions", "$defs"} {
		if block, ok := root[key].(map[string]any); ok {
			for name, def := range block {
				if m, ok := def.(map[string]any); ok {
					defs["#/"+key+"/"+name] = m
				}
			}
		}
	}
	return defs
}

func (g GeminiDialect) transform(node map[string]any, defs map[string]map[string]any) map[string]any {
	// Inline internal references before any other rewriting.
	if ref, ok := node["$ref"].(string); ok {
		if target, found := defs[ref]; found {
			return g.transform(target, defs)
		}
		// Unresolvable ref: nothing sensible to emit but an empty node.
		return map[string]any{}
	}

	// Union resolution: pick the first non-null branch, remember whether
	// a null branch existed.
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		branches, ok := node[key].([]any)
		if !ok {
			continue
		}
		var chosen map[string]any
		sawNull := false
		for _, b := range branches {
			bm, ok := b.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := bm["type"].(string); t == "null" {
				sawNull = true
				continue
			}
			if chosen == nil {
				chosen = bm
			}
		}
		if chosen == nil {
			return map[string]any{"nullable": true}
		}
		out := g.transform(chosen, defs)
		if sawNull {
			out["nullable"] = true
		}
		if d, ok := node["description"].(string); ok && out["description"] == nil {
			out["description"] = d
		}
		return out
	}

	out := map[string]any{}
	nullable := false

	for key, val := range node {
		if rejectedKeys[key] {
			continue
		}
		switch key {
		case "type":
			switch t := val.(type) {
			case string:
				out["type"] = t
			case []any:
				// Union-with-null collapses to a nullable single type.
				for _, variant := range t {
					vs, ok := variant.(string)
					if !ok {
						continue
					}
					if vs == "null" {
						nullable = true
						continue
					}
					if out["type"] == nil {
						out["type"] = vs
					}
				}
			}
		case "properties":
			props, ok := val.(map[string]any)
			if !ok {
				continue
			}
			rewritten := map[string]any{}
			for _, name := range sortedKeys(props) {
				if child, ok := props[name].(map[string]any); ok {
					rewritten[name] = g.transform(child, defs)
				}
			}
			out["properties"] = rewritten
		case "items":
			if child, ok := val.(map[string]any); ok {
				out["items"] = g.transform(child, defs)
			}
		case "nullable":
			if b, ok := val.(bool); ok && b {
				nullable = true
			}
		default:
			// enum, description, required and any other accepted keys
			// pass through unchanged.
			out[key] = val
		}
	}

	if nullable {
		out["nullable"] = true
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
