package schema

import (
	"fmt"
	"strings"
)

// FieldError describes a single validation failure at a specific field.
// Path is a JSON pointer ("/name", "/solutions/2"); "" addresses the root.
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationError aggregates every field failure found in one validation pass.
// Returning all failures at once lets the extractor request a single targeted
// repair instead of discovering problems one at a time.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "schema: invalid value: " + strings.Join(parts, "; ")
}

// Validate checks value (decoded JSON: map[string]any, []any, string, float64,
// bool, nil) against the schema. It returns nil on success or a
// *ValidationError listing every offending field.
func (s JSON) Validate(value any) error {
	var fields []FieldError
	s.validate(value, "", &fields)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s JSON) validate(value any, path string, out *[]FieldError) {
	if value == nil {
		if s.Type != "" {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected %s, got null", s.Type)})
		}
		return
	}

	if len(s.Enum) > 0 {
		for _, allowed := range s.Enum {
			if value == allowed {
				return
			}
		}
		*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("value %v is not one of the allowed values %v", value, s.Enum)})
		return
	}

	switch s.Type {
	case "string":
		str, ok := value.(string)
		if !ok {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected string, got %T", value)})
			return
		}
		if s.MinLength != nil && len(str) < *s.MinLength {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("string length %d is less than minimum %d", len(str), *s.MinLength)})
		}
		if s.MaxLength != nil && len(str) > *s.MaxLength {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("string length %d is greater than maximum %d", len(str), *s.MaxLength)})
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected integer, got %v", value)})
		}
	case "number":
		if _, ok := value.(float64); !ok {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected number, got %T", value)})
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected boolean, got %T", value)})
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected array, got %T", value)})
			return
		}
		if s.Items != nil {
			for i, item := range items {
				s.Items.validate(item, fmt.Sprintf("%s/%d", path, i), out)
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			*out = append(*out, FieldError{Path: path, Message: fmt.Sprintf("expected object, got %T", value)})
			return
		}
		for _, req := range s.Required {
			if _, exists := obj[req]; !exists {
				*out = append(*out, FieldError{Path: path + "/" + req, Message: "required field is missing"})
			}
		}
		// Unknown properties are ignored; only declared ones are checked.
		for key, val := range obj {
			if prop, exists := s.Properties[key]; exists {
				prop.validate(val, path+"/"+key, out)
			}
		}
	}
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	ve, ok := err.(*ValidationError)
	return ve, ok
}
