package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepsake-ai/keepsake-go-sdk/schema"
)

func TestValidate_CollectsAllErrors(t *testing.T) {
	doc := schema.Object(map[string]schema.JSON{
		"task":   schema.String("task"),
		"status": schema.StringEnum("status", "not started", "done"),
		"tags":   schema.Array("tags", schema.String("tag")),
	}, "task", "status")

	err := doc.Validate(map[string]any{
		"status": "unknown",
		"tags":   []any{"ok", 42},
	})
	require.Error(t, err)

	verr, ok := schema.AsValidationError(err)
	require.True(t, ok)

	paths := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		paths = append(paths, f.Path)
	}
	// Missing required field, bad enum value, and bad array element must all
	// surface in one pass.
	assert.Contains(t, paths, "/task")
	assert.Contains(t, paths, "/status")
	assert.Contains(t, paths, "/tags/1")
}

func TestValidate_AcceptsValidDocument(t *testing.T) {
	def := schema.TodoDefinition()

	err := def.Validate(map[string]any{
		"task":             "book flight",
		"time_to_complete": float64(30),
		"solutions":        []any{"compare prices", "use miles"},
		"status":           "not started",
	})
	assert.NoError(t, err)
}

func TestValidate_RejectsWrongTypes(t *testing.T) {
	doc := schema.Object(map[string]schema.JSON{
		"name":  schema.String("name"),
		"count": schema.Integer("count"),
	})

	err := doc.Validate(map[string]any{
		"name":  123,
		"count": "three",
	})
	require.Error(t, err)

	verr, ok := schema.AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, verr.Fields, 2)
}

func TestValidate_IntegerRejectsFraction(t *testing.T) {
	doc := schema.Object(map[string]schema.JSON{
		"count": schema.Integer("count"),
	})

	// JSON decoding yields float64; 2.5 is a number but not an integer.
	err := doc.Validate(map[string]any{"count": 2.5})
	require.Error(t, err)

	assert.NoError(t, doc.Validate(map[string]any{"count": float64(2)}))
}

func TestRegistry_DuplicateKind(t *testing.T) {
	_, err := schema.NewRegistry(schema.ProfileDefinition(), schema.ProfileDefinition())
	assert.Error(t, err)
}

func TestRegistry_PreservesOrder(t *testing.T) {
	r := schema.Default()
	assert.Equal(t, []schema.Kind{schema.KindProfile, schema.KindTodo, schema.KindInstructions}, r.Kinds())
}

func TestDefaultDefinitions_SingletonEmptyValuesValidate(t *testing.T) {
	for _, def := range []*schema.Definition{schema.ProfileDefinition(), schema.InstructionsDefinition()} {
		assert.NoError(t, def.Validate(def.Empty()), "kind %s", def.Kind)
	}
}
