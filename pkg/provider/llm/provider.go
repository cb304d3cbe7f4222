// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o,
// Anthropic Claude, or a local Ollama instance) and exposes the single
// "send prompt, receive text" operation the attribution passes need, without
// coupling them to any specific SDK.
//
// Implementors must be safe for concurrent use: the assignment pass issues
// many Complete calls in parallel.
package llm

import (
	"context"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The first message carries the
	// pass-specific user prompt; a trailing message may carry corrective
	// feedback about a previous attempt.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is the high-priority instruction block for the pass. If the
	// provider does not natively support a dedicated system prompt,
	// implementors should prepend it as a "system"-role message.
	SystemPrompt string

	// JSONOutput asks the backend to constrain the reply to a single JSON
	// object. Backends without such a mode ignore it.
	JSONOutput bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. It may be wrapped in
	// code fences or surrounded by commentary; callers strip that themselves.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines. Each
// method should propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives. Errors are treated as transient by callers.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens that text would consume in
	// the model's context window. The segmenter uses it to size extraction
	// blocks. The result need not be exact but should not undercount.
	CountTokens(text string) int

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports.
	Capabilities() types.ModelCapabilities
}

// EstimateTokens is the shared ~4 characters per token approximation used
// by backends without a local tokenizer.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
