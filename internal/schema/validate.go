package schema

import (
	"fmt"
	"math"
)

// Validate structurally checks a decoded JSON value against the schema.
// The provider's own claim of schema compliance is never trusted; every
// model response passes through here before it is used.
//
// Unknown object keys are ignored: extra output is harmless, missing or
// mistyped output is not.
func (s *Schema) Validate(value any) error {
	return s.validate(value, "$")
}

func (s *Schema) validate(value any, path string) error {
	if value == nil {
		if s.Nullable {
			return nil
		}
		return fmt.Errorf("%s: required value is null", path)
	}

	switch s.Kind {
	case Object:
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object, got %T", path, value)
		}
		for _, p := range s.Properties {
			child, present := obj[p.Name]
			childPath := path + "." + p.Name
			if !present {
				if p.Schema.Nullable {
					continue
				}
				return fmt.Errorf("%s: missing required field", childPath)
			}
			if err := p.Schema.validate(child, childPath); err != nil {
				return err
			}
		}
		return nil

	case Array:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array, got %T", path, value)
		}
		if s.Items == nil {
			return nil
		}
		for i, el := range arr {
			if err := s.Items.validate(el, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case String:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: expected string, got %T", path, value)
		}
		if len(s.Enum) > 0 {
			for _, v := range s.Enum {
				if str == v {
					return nil
				}
			}
			return fmt.Errorf("%s: value %q not in enum %v", path, str, s.Enum)
		}
		return nil

	case Number:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%s: expected number, got %T", path, value)
		}
		return nil

	case Integer:
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("%s: expected integer, got %T", path, value)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("%s: expected integer, got %v", path, f)
		}
		return nil

	case Boolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %T", path, value)
		}
		return nil
	}

	return fmt.Errorf("%s: unknown schema kind %q", path, s.Kind)
}
