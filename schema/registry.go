package schema

import "fmt"

// Kind identifies one memory kind. Records for one owner and one kind live in
// a single namespace.
type Kind string

const (
	// KindProfile is the singleton record of who the owner is.
	KindProfile Kind = "profile"

	// KindTodo is the collection of actionable items, one record each.
	KindTodo Kind = "todo"

	// KindInstructions is the singleton free-text blob of standing preferences
	// for how the assistant should behave.
	KindInstructions Kind = "instructions"
)

// Definition describes one memory kind: its schema, its singleton-ness, and
// how it is presented to the model and in rendered context.
type Definition struct {
	Kind Kind

	// Singleton kinds have exactly one record, stored under RecordKey.
	Singleton bool
	RecordKey string

	// Section titles the kind's block in the assembled context.
	Section string

	// ToolName and ToolDescription are used when binding this kind as an
	// extraction tool.
	ToolName        string
	ToolDescription string

	// Doc is the full-document schema for values of this kind.
	Doc JSON

	// Empty returns the default instance used when no record exists yet.
	Empty func() map[string]any
}

// Validate checks a candidate value against the kind's document schema.
func (d *Definition) Validate(value map[string]any) error {
	return d.Doc.Validate(value)
}

// Registry holds the memory kind definitions known to the system, in
// registration order.
type Registry struct {
	defs  map[Kind]*Definition
	order []Kind
}

// NewRegistry creates a registry from the given definitions.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[Kind]*Definition, len(defs))}
	for _, def := range defs {
		if def.Kind == "" {
			return nil, fmt.Errorf("schema: definition with empty kind")
		}
		if _, dup := r.defs[def.Kind]; dup {
			return nil, fmt.Errorf("schema: duplicate kind %q", def.Kind)
		}
		if def.Singleton && def.RecordKey == "" {
			return nil, fmt.Errorf("schema: singleton kind %q needs a record key", def.Kind)
		}
		r.defs[def.Kind] = def
		r.order = append(r.order, def.Kind)
	}
	return r, nil
}

// Get returns the definition for a kind.
func (r *Registry) Get(kind Kind) (*Definition, bool) {
	def, ok := r.defs[kind]
	return def, ok
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.order))
	copy(out, r.order)
	return out
}

// Default returns a registry with the three built-in kinds: profile, todo,
// and instructions.
func Default() *Registry {
	r, err := NewRegistry(ProfileDefinition(), TodoDefinition(), InstructionsDefinition())
	if err != nil {
		panic(err) // Built-in definitions are statically correct.
	}
	return r
}

// ProfileDefinition is the singleton user profile: optional typed fields,
// merged field-by-field on update.
func ProfileDefinition() *Definition {
	return &Definition{
		Kind:            KindProfile,
		Singleton:       true,
		RecordKey:       "user_profile",
		Section:         "USER PROFILE",
		ToolName:        "Profile",
		ToolDescription: "Personal information about the user: who they are, where they live, what they care about. Emit only fields stated in the conversation.",
		Doc: Object(map[string]JSON{
			"name":        String("The user's preferred name"),
			"location":    String("Where the user lives (city, country)"),
			"job":         String("The user's job or profession"),
			"connections": Array("People in the user's life: family, friends, coworkers", String("A person's name and relationship, e.g. 'Lotte (sister)'")),
			"interests":   Array("The user's interests and hobbies", String("A single interest")),
		}),
		Empty: func() map[string]any { return map[string]any{} },
	}
}

// TodoDefinition is the collection of actionable items, each a separate
// record addressed by id.
func TodoDefinition() *Definition {
	return &Definition{
		Kind:            KindTodo,
		Singleton:       false,
		Section:         "TASK LIST",
		ToolName:        "ToDo",
		ToolDescription: "A task the user wants tracked, with status, an optional deadline, and concrete ways to get it done.",
		Doc: Object(map[string]JSON{
			"task":             String("Short description of the task"),
			"time_to_complete": Integer("Estimated minutes to complete the task"),
			"deadline":         String("When the task is due, RFC 3339 format, omit when no deadline was given"),
			"solutions":        Array("Specific, actionable ways to complete the task", String("One concrete solution or approach")),
			"status":           StringEnum("Current task status", "not started", "in progress", "done", "archived"),
		}, "task", "status"),
		Empty: func() map[string]any {
			return map[string]any{"status": "not started", "solutions": []any{}}
		},
	}
}

// InstructionsDefinition is the singleton free-text blob of standing
// preferences; updates overwrite the whole document.
func InstructionsDefinition() *Definition {
	return &Definition{
		Kind:            KindInstructions,
		Singleton:       true,
		RecordKey:       "user_instructions",
		Section:         "STANDING INSTRUCTIONS",
		ToolName:        "Instructions",
		ToolDescription: "Standing preferences for how the assistant should behave, rewritten as a whole each time they change.",
		Doc: Object(map[string]JSON{
			"content": String("The full, current set of user preferences as free text"),
		}, "content"),
		Empty: func() map[string]any { return map[string]any{"content": ""} },
	}
}
