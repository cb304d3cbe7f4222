package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/storyvoice/pkg/provider/llm/mock"
	"github.com/MrWong99/storyvoice/pkg/types"
)

func TestLLMFallback_Complete(t *testing.T) {
	tests := []struct {
		name      string
		primary   llmmock.Response
		secondary llmmock.Response
		want      string
		wantErr   error
		wantCalls [2]int
	}{
		{
			name:      "primary answers",
			primary:   llmmock.Response{Content: "from primary"},
			secondary: llmmock.Response{Content: "from secondary"},
			want:      "from primary",
			wantCalls: [2]int{1, 0},
		},
		{
			name:      "failover",
			primary:   llmmock.Response{Err: errors.New("primary down")},
			secondary: llmmock.Response{Content: "from secondary"},
			want:      "from secondary",
			wantCalls: [2]int{1, 1},
		},
		{
			name:      "all fail",
			primary:   llmmock.Response{Err: errors.New("primary down")},
			secondary: llmmock.Response{Err: errors.New("secondary down")},
			wantErr:   ErrAllFailed,
			wantCalls: [2]int{1, 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			primary := &llmmock.Provider{Responses: []llmmock.Response{tc.primary}}
			secondary := &llmmock.Provider{Responses: []llmmock.Response{tc.secondary}}

			fb := NewLLMFallback(primary, "primary", FallbackConfig{
				CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
			})
			fb.AddFallback("secondary", secondary)

			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Content != tc.want {
					t.Errorf("content = %q, want %q", resp.Content, tc.want)
				}
			}
			if got := [2]int{len(primary.Calls()), len(secondary.Calls())}; got != tc.wantCalls {
				t.Errorf("calls = %v, want %v", got, tc.wantCalls)
			}
		})
	}
}

func TestLLMFallback_CountTokensUsesPrimary(t *testing.T) {
	primary := &llmmock.Provider{TokensPerChar: 2}
	secondary := &llmmock.Provider{TokensPerChar: 5}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if got := fb.CountTokens("abcd"); got != 8 {
		t.Errorf("CountTokens = %d, want 8", got)
	}
}

func TestLLMFallback_CapabilitiesTakeSmallestKnown(t *testing.T) {
	primary := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 128000, MaxOutputTokens: 16384}}
	secondary := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 32768}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	caps := fb.Capabilities()
	if caps.ContextWindow != 32768 {
		t.Errorf("ContextWindow = %d, want 32768", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 16384 {
		t.Errorf("MaxOutputTokens = %d, want 16384", caps.MaxOutputTokens)
	}
	if got := fb.Names(); len(got) != 2 || got[1] != "secondary" {
		t.Errorf("Names = %v", got)
	}
}
