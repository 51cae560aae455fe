// Package modeltest provides a scripted model.Client for tests: it replays a
// fixed sequence of canned responses and records every request it saw.
package modeltest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/keepsake-ai/keepsake-go-sdk/model"
)

// Script implements model.Client by popping one step per Invoke call.
type Script struct {
	mu       sync.Mutex
	steps    []step
	requests []*model.Request
}

type step struct {
	resp *model.Response
	err  error
}

// New creates an empty script. Add steps with Text, Call, Respond, and Fail.
func New() *Script {
	return &Script{}
}

// Text appends a plain-text response step.
func (s *Script) Text(text string) *Script {
	return s.Respond(&model.Response{Text: text})
}

// Call appends a response step with a single tool call. args is marshaled to
// JSON; pass a json.RawMessage or string to use raw bytes as-is.
func (s *Script) Call(name string, args any) *Script {
	return s.Respond(&model.Response{ToolCalls: []model.ToolCall{MakeCall(name, args)}})
}

// Respond appends an arbitrary response step.
func (s *Script) Respond(resp *model.Response) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{resp: resp})
	return s
}

// Fail appends a step that returns err.
func (s *Script) Fail(err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{err: err})
	return s
}

// Invoke records the request and replays the next scripted step.
func (s *Script) Invoke(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, fmt.Errorf("modeltest: script exhausted after %d calls", len(s.requests)-1)
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.resp, nil
}

// Requests returns every request seen so far, in order.
func (s *Script) Requests() []*model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns how many times Invoke has been called.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// MakeCall builds a model.ToolCall with marshaled arguments.
func MakeCall(name string, args any) model.ToolCall {
	var raw json.RawMessage
	switch v := args.(type) {
	case json.RawMessage:
		raw = v
	case string:
		raw = json.RawMessage(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("modeltest: marshal tool args: %v", err))
		}
		raw = b
	}
	return model.ToolCall{ID: fmt.Sprintf("call_%s", name), Name: name, Arguments: raw}
}
