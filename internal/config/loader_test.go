package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/storyvoice/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "missing llm provider",
			yaml:    "log_level: info\n",
			wantErr: []string{"providers.llm.name is required"},
		},
		{
			name:    "invalid log level",
			yaml:    "log_level: verbose\nproviders: {llm: {name: openai}}\n",
			wantErr: []string{`log_level "verbose" is invalid`},
		},
		{
			name:    "fallback without name",
			yaml:    "providers:\n  llm: {name: openai}\n  fallbacks:\n    - model: x\n",
			wantErr: []string{"providers.fallbacks[0].name is required"},
		},
		{
			name:    "negative budgets",
			yaml:    "providers: {llm: {name: openai}}\npipeline:\n  extraction_block_tokens: -1\n  assignment_block_chars: -2\n  concurrency: -3\n",
			wantErr: []string{"extraction_block_tokens -1", "assignment_block_chars -2", "concurrency -3"},
		},
		{
			name:    "temperature out of range",
			yaml:    "providers: {llm: {name: openai}}\npipeline: {temperature: 2.5}\n",
			wantErr: []string{"pipeline.temperature 2.50 is out of range"},
		},
		{
			name:    "negative retry delay",
			yaml:    "providers: {llm: {name: openai}}\npipeline: {retry_delays: [1s, -1s]}\n",
			wantErr: []string{"pipeline.retry_delays[1]"},
		},
		{
			name:    "negative circuit breaker",
			yaml:    "providers: {llm: {name: openai}}\ncircuit_breaker: {max_failures: -1}\n",
			wantErr: []string{"circuit_breaker values must not be negative"},
		},
		{
			name:    "empty voice id",
			yaml:    "providers: {llm: {name: openai}}\nvoices: {characters: {John: \"\"}}\n",
			wantErr: []string{`characters["John"] has an empty voice id`},
		},
		{
			name: "unknown provider only warns",
			yaml: "providers: {llm: {name: my-inhouse-llm}}\n",
		},
		{
			name: "zero temperature is valid",
			yaml: "providers: {llm: {name: openai}}\npipeline: {temperature: 0}\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected errors %q, got nil", tc.wantErr)
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should contain %q", err, want)
				}
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: loud
pipeline:
  concurrency: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "providers.llm.name", "pipeline.concurrency"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error should mention %q, got: %v", want, msg)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"openai", "anthropic", "ollama", "gemini"} {
		found := false
		for _, n := range config.ValidProviderNames {
			if n == name {
				found = true
			}
		}
		if !found {
			t.Errorf("ValidProviderNames should contain %q", name)
		}
	}
}
