// Package model isolates the language-model invocation boundary behind one
// narrow interface, so the extraction and routing control flow is testable
// with a scripted fake instead of a live model.
package model

import (
	"context"
	"encoding/json"

	"github.com/keepsake-ai/keepsake-go-sdk/core"
	"github.com/keepsake-ai/keepsake-go-sdk/schema"
)

// Tool is a named structured-output target the model may call.
type Tool struct {
	Name        string
	Description string
	InputSchema schema.JSON
}

// ToolCall is one structured call emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolChoiceMode controls how the model may respond when tools are bound.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model answer in text or call tools.
	ToolChoiceAuto ToolChoiceMode = "auto"

	// ToolChoiceAny forces the model to call at least one bound tool.
	ToolChoiceAny ToolChoiceMode = "any"

	// ToolChoiceTool forces the model to call one specific tool.
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice selects a tool-choice mode; Name is only used with ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ForceTool returns a ToolChoice that forces the named tool.
func ForceTool(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceTool, Name: name}
}

// ForceAny returns a ToolChoice that forces some tool call.
func ForceAny() ToolChoice {
	return ToolChoice{Mode: ToolChoiceAny}
}

// Request is one model invocation.
type Request struct {
	System     string
	Messages   []core.Message
	Tools      []Tool
	ToolChoice ToolChoice
	MaxTokens  int64
}

// Usage tracks token consumption for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates another invocation's usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Response is the model's reply: text, tool calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// HasToolCalls reports whether the response contains at least one tool call.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Client is the single capability the memory subsystem needs from a language
// model: bind a fixed set of named tools, optionally force a choice among
// them, and get back structured calls or text.
type Client interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}
