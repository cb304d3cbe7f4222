package resilience

import (
	"context"

	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// LLMFallback implements [llm.Provider] over several backends. Each backend
// sits behind its own circuit breaker; when one fails the next healthy one
// answers the same request.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in try order.
func (f *LLMFallback) Names() []string {
	return f.group.Names()
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens uses the primary's tokenizer so block sizes stay stable when a
// request fails over.
func (f *LLMFallback) CountTokens(text string) int {
	return f.group.Primary().CountTokens(text)
}

// Capabilities reports the smallest known limits across all backends, since
// any of them may end up serving a request. Zero means unknown.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	var caps types.ModelCapabilities
	for _, e := range f.group.entries {
		c := e.value.Capabilities()
		caps.ContextWindow = minKnown(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minKnown(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}

func minKnown(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}
