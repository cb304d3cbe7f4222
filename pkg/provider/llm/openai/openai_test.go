package openai

import (
	"testing"

	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	"github.com/MrWong99/storyvoice/pkg/types"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role  string
		check func(t *testing.T, m types.Message)
	}{
		{"system", func(t *testing.T, m types.Message) {
			got, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.OfSystem == nil {
				t.Fatal("expected OfSystem to be set")
			}
		}},
		{"user", func(t *testing.T, m types.Message) {
			got, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.OfUser == nil {
				t.Fatal("expected OfUser to be set")
			}
		}},
		{"assistant", func(t *testing.T, m types.Message) {
			got, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.OfAssistant == nil {
				t.Fatal("expected OfAssistant to be set")
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			tc.check(t, types.Message{Role: tc.role, Content: "text"})
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(types.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages: []types.Message{
			{Role: "user", Content: "block"},
			{Role: "user", Content: "fix these errors"},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3 (system + 2 user)", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("temperature not propagated: %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 512 {
		t.Errorf("max tokens not propagated: %+v", params.MaxCompletionTokens)
	}
	if params.ResponseFormat.OfJSONObject != nil {
		t.Error("JSON mode set without JSONOutput")
	}
}

func TestBuildParams_JSONOutput(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Answer with a single JSON object.",
		Messages:     []types.Message{{Role: "user", Content: "block"}},
		JSONOutput:   true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected json_object response format")
	}
}

func TestBuildParams_NoMessages(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	if _, err := p.buildParams(llm.CompletionRequest{SystemPrompt: "sys"}); err == nil {
		t.Fatal("expected error for request without messages")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model      string
		wantWindow int
	}{
		{"gpt-4o-mini", 128_000},
		{"gpt-4o", 128_000},
		{"gpt-4", 8_192},
		{"gpt-3.5-turbo", 16_385},
		{"o3-mini", 200_000},
		{"my-custom-model", 128_000},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			caps := modelCapabilities(tc.model)
			if caps.ContextWindow != tc.wantWindow {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tc.wantWindow)
			}
			if caps.MaxOutputTokens <= 0 {
				t.Error("expected MaxOutputTokens > 0")
			}
		})
	}
}

func TestCountTokens_Estimation(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	if got := p.CountTokens("Hello world"); got != 3 {
		t.Errorf("CountTokens = %d, want 3", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o", WithBaseURL("https://custom.example.com"), WithOrganization("org-123")); err != nil {
		t.Errorf("unexpected error with valid options: %v", err)
	}
}

func TestNew_ContextWindowOverride(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "local-model", WithBaseURL("http://localhost:8000/v1"), WithContextWindow(32_000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Capabilities().ContextWindow; got != 32_000 {
		t.Errorf("ContextWindow = %d, want 32000", got)
	}
	p, err = New("sk-test", "gpt-4")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Capabilities().ContextWindow; got != 8_192 {
		t.Errorf("ContextWindow = %d, want 8192", got)
	}
}
