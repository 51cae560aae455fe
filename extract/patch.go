package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/keepsake-ai/keepsake-go-sdk/store"
)

// PatchOp is one field-level change: an RFC 6902 subset with add, replace,
// and remove. Paths are JSON pointers; "/-" appends to an array.
//
// Patches are the central design choice of the extractor: the model describes
// only what changed, so fields outside the scope of the current turn are
// preserved exactly and token cost scales with the size of the change.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// ApplyPatch applies patches to a deep copy of doc and returns the result.
// The input document is never mutated.
func ApplyPatch(doc map[string]any, patches []PatchOp) (map[string]any, error) {
	return applyPatch(doc, patches, true)
}

// applyPatch applies patches to a copy of doc. In lenient mode individual
// failing ops are skipped; that mode backs the treat-missing-update-as-insert
// edge case, where patches written against a vanished record are replayed
// onto an empty document.
func applyPatch(doc map[string]any, patches []PatchOp, strict bool) (map[string]any, error) {
	out := store.CloneValue(doc).(map[string]any)
	for i, p := range patches {
		segments, err := parsePointer(p.Path)
		if err == nil {
			switch p.Op {
			case "add", "replace":
				_, err = setAtPath(out, segments, p.Value)
			case "remove":
				_, err = removeAtPath(out, segments)
			default:
				err = fmt.Errorf("unsupported op %q", p.Op)
			}
		}
		if err != nil {
			if !strict {
				continue
			}
			return nil, fmt.Errorf("patch %d (%s %s): %w", i, p.Op, p.Path, err)
		}
	}
	return out, nil
}

// parsePointer splits a JSON pointer into unescaped segments.
func parsePointer(path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, fmt.Errorf("path %q is not a JSON pointer", path)
	}
	raw := strings.Split(path[1:], "/")
	segments := make([]string, len(raw))
	for i, s := range raw {
		s = strings.ReplaceAll(s, "~1", "/")
		s = strings.ReplaceAll(s, "~0", "~")
		segments[i] = s
	}
	return segments, nil
}

// setAtPath sets value at the pointer path inside container and returns the
// (possibly reallocated) container, so array appends propagate upward.
func setAtPath(container any, segments []string, value any) (any, error) {
	seg := segments[0]
	last := len(segments) == 1

	switch c := container.(type) {
	case map[string]any:
		if last {
			c[seg] = value
			return c, nil
		}
		child, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("path segment %q not found", seg)
		}
		newChild, err := setAtPath(child, segments[1:], value)
		if err != nil {
			return nil, err
		}
		c[seg] = newChild
		return c, nil

	case []any:
		if seg == "-" {
			if !last {
				return nil, fmt.Errorf("append marker must be the final segment")
			}
			return append(c, value), nil
		}
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("invalid array index %q", seg)
		}
		if last {
			c[idx] = value
			return c, nil
		}
		newChild, err := setAtPath(c[idx], segments[1:], value)
		if err != nil {
			return nil, err
		}
		c[idx] = newChild
		return c, nil

	default:
		return nil, fmt.Errorf("segment %q addresses a scalar", seg)
	}
}

// removeAtPath removes the value at the pointer path and returns the
// (possibly reallocated) container.
func removeAtPath(container any, segments []string) (any, error) {
	seg := segments[0]
	last := len(segments) == 1

	switch c := container.(type) {
	case map[string]any:
		if last {
			if _, ok := c[seg]; !ok {
				return nil, fmt.Errorf("field %q not found", seg)
			}
			delete(c, seg)
			return c, nil
		}
		child, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("path segment %q not found", seg)
		}
		newChild, err := removeAtPath(child, segments[1:])
		if err != nil {
			return nil, err
		}
		c[seg] = newChild
		return c, nil

	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("invalid array index %q", seg)
		}
		if last {
			return append(c[:idx], c[idx+1:]...), nil
		}
		newChild, err := removeAtPath(c[idx], segments[1:])
		if err != nil {
			return nil, err
		}
		c[idx] = newChild
		return c, nil

	default:
		return nil, fmt.Errorf("segment %q addresses a scalar", seg)
	}
}
