// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts a pass sends and to feed
// a scripted sequence of responses (including transport errors and malformed
// output) without a live LLM backend. Configure fields before the first call;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []mock.Response{
//	        {Err: errors.New("connection reset")},
//	        {Content: `{"characters": []}`},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Response is one scripted answer to a Complete call.
type Response struct {
	// Content is returned as CompletionResponse.Content when Err is nil.
	Content string

	// Err, if non-nil, is returned instead of a response.
	Err error
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Complete resolves its answer in this order: CompleteFunc if set, otherwise
// the next entry of Responses, otherwise the last entry of Responses again
// (so a single scripted response answers every call), otherwise an empty
// response.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is consumed front to back by successive Complete calls.
	Responses []Response

	// CompleteFunc, if set, computes the response for every call. It is
	// called with the mutex released and must be safe for concurrent use.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (string, error)

	// TokensPerChar, if positive, makes CountTokens return
	// len(text)*TokensPerChar. Otherwise llm.EstimateTokens is used.
	TokensPerChar int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	var resp Response
	if fn == nil && len(p.Responses) > 0 {
		i := min(p.next, len(p.Responses)-1)
		resp = p.Responses[i]
		p.next++
	}
	p.mu.Unlock()

	if fn != nil {
		content, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{Content: content}, nil
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &llm.CompletionResponse{Content: resp.Content}, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(text string) int {
	if p.TokensPerChar > 0 {
		return len(text) * p.TokensPerChar
	}
	return llm.EstimateTokens(text)
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls and rewinds the response script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
