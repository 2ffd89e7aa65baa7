package strings

import (
	"testing"
	"unicode/utf8"
)

func TestEllipsize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short", input: "echo-1", maxLen: 10, expected: "echo-1"},
		{name: "exact", input: "echo-1", maxLen: 6, expected: "echo-1"},
		{name: "cut", input: "a-very-long-container-name", maxLen: 12, expected: "a-very-lo..."},
		{name: "multiline log", input: "line one\r\nline  two\t", maxLen: 40, expected: "line one line two"},
		{name: "clamped", input: "abcdefgh", maxLen: 1, expected: "a..."},
		{name: "runes", input: "ééééééé", maxLen: 5, expected: "éé..."},
		{name: "empty", input: "", maxLen: 10, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ellipsize(tt.input, tt.maxLen)
			if got != tt.expected {
				t.Errorf("Ellipsize(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
			if n := utf8.RuneCountInString(got); n > max(tt.maxLen, 4) {
				t.Errorf("result has %d runes, limit %d", n, tt.maxLen)
			}
		})
	}
}
