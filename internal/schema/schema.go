// Package schema defines the abstract field schema used to constrain and
// validate model output. The schema is a small tagged-variant tree rather
// than a free-form JSON blob, so transformations and validation are
// structural recursions with exhaustive case handling.
package schema

// Kind is the variant tag for a schema node.
type Kind string

const (
	Object  Kind = "object"
	Array   Kind = "array"
	String  Kind = "string"
	Number  Kind = "number"
	Integer Kind = "integer"
	Boolean Kind = "boolean"
)

// Schema describes one node of the abstract schema tree.
type Schema struct {
	Kind        Kind
	Description string

	// Nullable marks a field that the model may legitimately return as
	// null. Required/optional status is derived from this flag: object
	// properties that are not nullable are required.
	Nullable bool

	// Enum constrains a String node to a fixed value set.
	Enum []string

	// Properties holds object fields in declaration order. Order matters
	// for prompt construction and for deterministic schema emission.
	Properties []Property

	// Items describes array elements.
	Items *Schema
}

// Property is a named object field.
type Property struct {
	Name   string
	Schema *Schema
}

// NewObject builds an object schema from ordered properties.
func NewObject(props ...Property) *Schema {
	return &Schema{Kind: Object, Properties: props}
}

// NewArray builds an array schema.
func NewArray(items *Schema) *Schema {
	return &Schema{Kind: Array, Items: items}
}

// Prop builds a named property.
func Prop(name string, s *Schema) Property {
	return Property{Name: name, Schema: s}
}

// Str builds a string schema with an optional description.
func Str(description string) *Schema {
	return &Schema{Kind: String, Description: description}
}

// Num builds a number schema with an optional description.
func Num(description string) *Schema {
	return &Schema{Kind: Number, Description: description}
}

// Int builds an integer schema with an optional description.
func Int(description string) *Schema {
	return &Schema{Kind: Integer, Description: description}
}

// Bool builds a boolean schema with an optional description.
func Bool(description string) *Schema {
	return &Schema{Kind: Boolean, Description: description}
}

// StrEnum builds a string schema constrained to the given values.
func StrEnum(description string, values ...string) *Schema {
	return &Schema{Kind: String, Description: description, Enum: values}
}

// AsNullable returns a copy of s marked nullable.
func (s *Schema) AsNullable() *Schema {
	c := *s
	c.Nullable = true
	return &c
}

// Required lists the names of non-nullable properties of an object node.
func (s *Schema) Required() []string {
	if s.Kind != Object {
		return nil
	}
	var req []string
	for _, p := range s.Properties {
		if !p.Schema.Nullable {
			req = append(req, p.Name)
		}
	}
	return req
}

// Property returns the schema of the named object field, or nil.
func (s *Schema) Property(name string) *Schema {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// JSONSchema emits the canonical JSON Schema representation of the tree.
// Nullable fields are expressed as a type union with "null"; provider
// dialects that cannot express unions rewrite this form through a
// SchemaTransformer.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{}

	if s.Nullable {
		out["type"] = []any{string(s.Kind), "null"}
	} else {
		out["type"] = string(s.Kind)
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		vals := make([]any, len(s.Enum))
		for i, v := range s.Enum {
			vals[i] = v
		}
		out["enum"] = vals
	}

	switch s.Kind {
	case Object:
		props := map[string]any{}
		for _, p := range s.Properties {
			props[p.Name] = p.Schema.JSONSchema()
		}
		out["properties"] = props
		req := s.Required()
		reqAny := make([]any, len(req))
		for i, r := range req {
			reqAny[i] = r
		}
		out["required"] = reqAny
		out["additionalProperties"] = false
	case Array:
		if s.Items != nil {
			out["items"] = s.Items.JSONSchema()
		}
	}

	return out
}
