// Package segment splits narrative text into globally indexed sentence blocks.
//
// Two block sizes are produced from the same sentence sequence:
//
//   - [Coarse] blocks are token-budgeted and feed character discovery, where
//     fewer, larger LLM calls are preferable.
//   - [Fine] blocks are character-budgeted and feed speaker assignment, where
//     small prompts keep the per-call error surface small and allow more
//     parallelism.
//
// Both modes index sentences from 0 in document order, so a sentence has the
// same global index in a coarse block and in a fine block. A sentence longer
// than the budget is never truncated; it becomes a block of its own.
package segment

import (
	"github.com/MrWong99/storyvoice/pkg/types"
)

const (
	// DefaultExtractionTokens is the coarse block budget in tokens.
	DefaultExtractionTokens = 12_000

	// DefaultAssignmentChars is the fine block budget in characters.
	DefaultAssignmentChars = 3_000
)

// Counter estimates the token cost of a piece of text.
type Counter func(text string) int

// Coarse splits text into blocks whose summed token cost stays within
// maxTokens. A non-positive maxTokens selects [DefaultExtractionTokens].
func Coarse(text string, maxTokens int, count Counter) []types.TextBlock {
	if maxTokens <= 0 {
		maxTokens = DefaultExtractionTokens
	}
	if count == nil {
		count = func(s string) int { return (len(s) + 3) / 4 }
	}
	return Pack(SplitSentences(text), maxTokens, func(s string) int {
		// One extra token for the joining whitespace.
		return count(s) + 1
	})
}

// Fine splits text into blocks whose summed character length (plus one
// separator per sentence) stays within maxChars. A non-positive maxChars
// selects [DefaultAssignmentChars].
func Fine(text string, maxChars int) []types.TextBlock {
	if maxChars <= 0 {
		maxChars = DefaultAssignmentChars
	}
	return Pack(SplitSentences(text), maxChars, func(s string) int {
		return len([]rune(s)) + 1
	})
}

// Pack greedily groups sentences into consecutive blocks whose summed cost
// does not exceed budget. Sentence i of the input receives global index i.
// A sentence whose own cost exceeds budget is emitted alone.
func Pack(sentences []string, budget int, cost func(string) int) []types.TextBlock {
	var (
		blocks  []types.TextBlock
		current []string
		used    int
		start   int
	)
	flush := func(next int) {
		if len(current) > 0 {
			blocks = append(blocks, types.TextBlock{Sentences: current, SentenceStartIndex: start})
		}
		current = nil
		used = 0
		start = next
	}

	for i, s := range sentences {
		c := cost(s)
		if len(current) > 0 && used+c > budget {
			flush(i)
		}
		current = append(current, s)
		used += c
		if used >= budget {
			flush(i + 1)
		}
	}
	flush(len(sentences))
	return blocks
}

// SentenceCount returns the total number of sentences across blocks.
func SentenceCount(blocks []types.TextBlock) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Sentences)
	}
	return n
}
