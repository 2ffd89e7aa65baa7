package formatting

import (
	"encoding/json"
	"testing"
	"time"

	"echopulse/internal/agent"
)

func TestSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{name: "zero", input: time.Time{}, expected: "-"},
		{name: "seconds", input: now.Add(-42 * time.Second), expected: "42s"},
		{name: "minutes", input: now.Add(-5 * time.Minute), expected: "5m"},
		{name: "hours", input: now.Add(-3 * time.Hour), expected: "3h"},
		{name: "days", input: now.Add(-50 * time.Hour), expected: "2d"},
		{name: "future", input: now.Add(time.Minute), expected: "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := since(now, tt.input); got != tt.expected {
				t.Errorf("since() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewAgentViewDecodesThoughts(t *testing.T) {
	a := agent.Agent{
		ID: "abc",
		ThoughtLog: agent.ThoughtLog{
			json.RawMessage(`{"t":"hello"}`),
			json.RawMessage(`not json`),
		},
	}

	view := newAgentView(a)
	if len(view.ThoughtLog) != 2 {
		t.Fatalf("expected 2 thoughts, got %d", len(view.ThoughtLog))
	}
	if m, ok := view.ThoughtLog[0].(map[string]interface{}); !ok || m["t"] != "hello" {
		t.Errorf("first thought = %#v, want decoded object", view.ThoughtLog[0])
	}
	if s, ok := view.ThoughtLog[1].(string); !ok || s != "not json" {
		t.Errorf("second thought = %#v, want raw string", view.ThoughtLog[1])
	}
}
