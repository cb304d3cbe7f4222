package llmcall

import (
	"regexp"
	"slices"
	"testing"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n1:A\n2:B\n```", "1:A\n2:B"},
		{"  plain  ", "plain"},
		{"```{}```", "{}"},
	}
	for _, tc := range tests {
		if got := StripFences(tc.in); got != tc.want {
			t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"bare", `{"characters": []}`, `{"characters": []}`, true},
		{"chatter around", "Sure! Here you go:\n{\"a\": {\"b\": 1}}\nLet me know.", `{"a": {"b": 1}}`, true},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"brace in string", `{"name": "Mr. }{ Odd", "x": "\"}"} trailing`, `{"name": "Mr. }{ Odd", "x": "\"}"}`, true},
		{"unbalanced", `{"a": [1, 2`, "", false},
		{"none", "no json here", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractJSONObject(tc.in)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ExtractJSONObject = %q, %v; want %q, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestExtractLines(t *testing.T) {
	t.Parallel()

	entry := regexp.MustCompile(`^\d+:[A-Za-z0-9]+$`).MatchString
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"clean", "1:A\n2:B", []string{"1:A", "2:B"}},
		{"chatter trimmed", "Here are the speakers:\n\n```\n1:A\n 2:B \n```\nHope that helps!", []string{"1:A", "2:B"}},
		{"interior junk kept", "1:A\nJohn: 2\n3:B", []string{"1:A", "John: 2", "3:B"}},
		{"empty", "", nil},
		{"only chatter", "There is no dialogue in this passage.", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractLines(tc.in, entry); !slices.Equal(got, tc.want) {
				t.Errorf("ExtractLines = %q, want %q", got, tc.want)
			}
		})
	}
}
