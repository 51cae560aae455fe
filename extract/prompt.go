package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keepsake-ai/keepsake-go-sdk/schema"
)

// buildSystem renders the extraction context: the caller's instruction, the
// existing records for the target kind, and how to choose between emitting a
// new document and patching an existing one.
func buildSystem(def *schema.Definition, req *Request) string {
	var b strings.Builder

	if req.Instruction != "" {
		b.WriteString(req.Instruction)
	} else {
		fmt.Fprintf(&b, "Extract and reconcile %q memory from the conversation.", def.Kind)
	}
	b.WriteString("\n\n")

	b.WriteString("EXISTING RECORDS:\n")
	if len(req.Existing) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, ex := range req.Existing {
			fmt.Fprintf(&b, "<record id=%q>\n%s\n</record>\n", ex.ID, compactJSON(ex.Value))
		}
	}
	b.WriteString("\n")

	b.WriteString("RULES:\n")
	if len(req.Existing) > 0 {
		fmt.Fprintf(&b, "- To change an existing record, call %s with its id and the minimal set of field patches. Never restate fields that did not change.\n", PatchToolName)
	}
	if req.AllowInserts || len(req.Existing) == 0 {
		fmt.Fprintf(&b, "- For information with no matching existing record, call %s with a complete new document.\n", def.ToolName)
	} else {
		fmt.Fprintf(&b, "- %s holds a single document; calling %s replaces the fields you provide and keeps the rest.\n", def.Kind, def.ToolName)
	}
	b.WriteString("- Only record information actually stated in the conversation.\n")

	return b.String()
}

// buildRepairSystem asks the model to correct exactly the failing fields of
// an invalid candidate document.
func buildRepairSystem(def *schema.Definition, value map[string]any, ve *schema.ValidationError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The %s document below failed validation.\n\nDOCUMENT:\n%s\n\nFIELD ERRORS:\n", def.ToolName, compactJSON(value))
	for _, f := range ve.Fields {
		fmt.Fprintf(&b, "- %s\n", f.String())
	}
	fmt.Fprintf(&b, "\nCall %s with the corrected document. Fix only the listed fields; keep every other field exactly as it is.", def.ToolName)

	return b.String()
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
