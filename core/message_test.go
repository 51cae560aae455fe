package core_test

import (
	"testing"

	"github.com/keepsake-ai/keepsake-go-sdk/core"
)

func TestWindow(t *testing.T) {
	var msgs []core.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, core.NewUserMessage("m"))
	}

	if got := core.Window(msgs, 3); len(got) != 3 {
		t.Errorf("Window(5, 3) returned %d messages", len(got))
	}
	if got := core.Window(msgs, 10); len(got) != 5 {
		t.Errorf("Window(5, 10) returned %d messages", len(got))
	}
	if got := core.Window(msgs, 0); len(got) != 5 {
		t.Errorf("Window with zero size should return everything, got %d", len(got))
	}
}

func TestWindowKeepsTail(t *testing.T) {
	msgs := []core.Message{
		core.NewUserMessage("first"),
		core.NewAssistantMessage("second"),
		core.NewUserMessage("third"),
	}
	got := core.Window(msgs, 2)
	if got[0].Content != "second" || got[1].Content != "third" {
		t.Errorf("Window should keep the most recent messages, got %v", got)
	}
}
