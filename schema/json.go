package schema

// JSON represents a JSON Schema definition. It doubles as the wire shape sent
// to the model as a tool input schema.
type JSON struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Properties  map[string]JSON `json:"properties,omitempty"`
	Required    []string        `json:"required,omitempty"`
	Items       *JSON           `json:"items,omitempty"`
	Enum        []any           `json:"enum,omitempty"`
	Default     any             `json:"default,omitempty"`
	MinLength   *int            `json:"minLength,omitempty"`
	MaxLength   *int            `json:"maxLength,omitempty"`
	Format      string          `json:"format,omitempty"`
}

// String creates a string schema with a description.
func String(description string) JSON {
	return JSON{Type: "string", Description: description}
}

// StringEnum creates a string schema restricted to the given values.
func StringEnum(description string, values ...string) JSON {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return JSON{Type: "string", Description: description, Enum: enum}
}

// Integer creates an integer schema with a description.
func Integer(description string) JSON {
	return JSON{Type: "integer", Description: description}
}

// Number creates a number schema with a description.
func Number(description string) JSON {
	return JSON{Type: "number", Description: description}
}

// Boolean creates a boolean schema with a description.
func Boolean(description string) JSON {
	return JSON{Type: "boolean", Description: description}
}

// Array creates an array schema with the given item schema.
func Array(description string, items JSON) JSON {
	return JSON{Type: "array", Description: description, Items: &items}
}

// Object creates an object schema with the given properties and required fields.
func Object(properties map[string]JSON, required ...string) JSON {
	return JSON{Type: "object", Properties: properties, Required: required}
}
