package schema

import (
	"reflect"
	"testing"
)

func receiptSchema() *Schema {
	return NewObject(
		Prop("date", Str("purchase date")),
		Prop("totalAmount", Num("total charged")),
		Prop("merchantName", Str("merchant").AsNullable()),
		Prop("paymentMethod", StrEnum("payment method", "cash", "credit", "debit").AsNullable()),
		Prop("itemCount", Int("line item count").AsNullable()),
	)
}

func TestRequired(t *testing.T) {
	got := receiptSchema().Required()
	want := []string{"date", "totalAmount"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Required() = %v, want %v", got, want)
	}
}

func TestJSONSchemaNullableTypeUnion(t *testing.T) {
	out := receiptSchema().JSONSchema()

	props, ok := out["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", out)
	}

	merchant := props["merchantName"].(map[string]any)
	typ, ok := merchant["type"].([]any)
	if !ok {
		t.Fatalf("nullable field type = %v, want union with null", merchant["type"])
	}
	if !reflect.DeepEqual(typ, []any{"string", "null"}) {
		t.Errorf("nullable type union = %v, want [string null]", typ)
	}

	date := props["date"].(map[string]any)
	if date["type"] != "string" {
		t.Errorf("required field type = %v, want plain string", date["type"])
	}

	if out["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", out["additionalProperties"])
	}
}

func TestValidate(t *testing.T) {
	s := receiptSchema()

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{
			name: "valid full document",
			value: map[string]any{
				"date":          "2025-03-14",
				"totalAmount":   42.17,
				"merchantName":  "Corner Cafe",
				"paymentMethod": "credit",
				"itemCount":     float64(3),
			},
		},
		{
			name: "nullable fields may be null or absent",
			value: map[string]any{
				"date":         "2025-03-14",
				"totalAmount":  42.17,
				"merchantName": nil,
			},
		},
		{
			name: "missing required field",
			value: map[string]any{
				"totalAmount": 42.17,
			},
			wantErr: true,
		},
		{
			name: "required field null",
			value: map[string]any{
				"date":        nil,
				"totalAmount": 42.17,
			},
			wantErr: true,
		},
		{
			name: "wrong type for number",
			value: map[string]any{
				"date":        "2025-03-14",
				"totalAmount": "42.17",
			},
			wantErr: true,
		},
		{
			name: "enum violation",
			value: map[string]any{
				"date":          "2025-03-14",
				"totalAmount":   42.17,
				"paymentMethod": "cheque",
			},
			wantErr: true,
		},
		{
			name: "fractional integer rejected",
			value: map[string]any{
				"date":        "2025-03-14",
				"totalAmount": 42.17,
				"itemCount":   2.5,
			},
			wantErr: true,
		},
		{
			name: "unknown keys ignored",
			value: map[string]any{
				"date":        "2025-03-14",
				"totalAmount": 42.17,
				"surprise":    true,
			},
		},
		{
			name:    "non-object root",
			value:   []any{"x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateArray(t *testing.T) {
	s := NewArray(NewObject(
		Prop("name", Str("")),
		Prop("amount", Num("")),
	))

	valid := []any{
		map[string]any{"name": "a", "amount": 1.0},
		map[string]any{"name": "b", "amount": 2.0},
	}
	if err := s.Validate(valid); err != nil {
		t.Errorf("Validate(valid array) = %v, want nil", err)
	}

	invalid := []any{
		map[string]any{"name": "a", "amount": 1.0},
		map[string]any{"name": "b"},
	}
	if err := s.Validate(invalid); err == nil {
		t.Error("Validate(array with missing field) = nil, want error")
	}
}
