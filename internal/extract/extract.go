// Package extract discovers the speaking characters of a text.
//
// Coarse blocks are processed strictly one after another. Each prompt carries
// the roster found so far so the model reuses canonical names across blocks.
// Results are folded with [LocalMerge], which only collapses entries whose
// canonical names match case-insensitively; resolving differently named
// entries is the merge pass's job.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/prompt"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Pass runs character extraction.
type Pass struct {
	caller      *llmcall.Caller
	temperature float64
	progress    func(done, total int)
	system      string
}

// Option configures a [Pass].
type Option func(*Pass)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(t float64) Option {
	return func(p *Pass) { p.temperature = t }
}

// WithProgress registers fn to be called after every block.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pass) { p.progress = fn }
}

// New creates an extraction pass that calls the model through caller.
func New(caller *llmcall.Caller, opts ...Option) (*Pass, error) {
	p := &Pass{caller: caller, temperature: 0.1}
	for _, o := range opts {
		o(p)
	}
	sys, err := prompt.Render(prompt.ExtractSystem, prompt.ExtractData{Schema: prompt.Schema(&response{})})
	if err != nil {
		return nil, err
	}
	p.system = sys
	return p, nil
}

// Run extracts characters from blocks in order. It returns an error only
// when ctx is cancelled.
func (p *Pass) Run(ctx context.Context, blocks []types.TextBlock) ([]types.Character, error) {
	var roster []types.Character
	for i, b := range blocks {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", llmcall.ErrCancelled, context.Cause(ctx))
		}
		found, err := p.block(ctx, b, roster)
		if err != nil {
			return nil, err
		}
		roster = LocalMerge(append(roster, found...))
		observe.Logger(ctx).Debug("extraction block done",
			"block", i, "start_index", b.SentenceStartIndex, "found", len(found), "roster", len(roster))
		if p.progress != nil {
			p.progress(i+1, len(blocks))
		}
	}
	return roster, nil
}

func (p *Pass) block(ctx context.Context, b types.TextBlock, known []types.Character) ([]types.Character, error) {
	ctx, span := observe.StartSpan(ctx, "extract.block")
	defer span.End()

	user, err := prompt.Render(prompt.ExtractUser, prompt.ExtractData{Known: known, Text: b.Text()})
	if err != nil {
		return nil, err
	}
	raw, err := p.caller.Call(ctx, llmcall.Request{
		Kind:         llmcall.KindExtract,
		SystemPrompt: p.system,
		UserPrompt:   user,
		Validate:     Validate,
		Temperature:  p.temperature,
		JSON:         true,
	})
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// LocalMerge collapses characters whose canonical names are equal ignoring
// case. The first occurrence keeps its position and spelling; variations are
// unioned. An unknown gender is replaced by a known one, while two different
// known genders keep the first.
func LocalMerge(chars []types.Character) []types.Character {
	out := make([]types.Character, 0, len(chars))
	pos := make(map[string]int, len(chars))
	for _, c := range chars {
		key := strings.ToLower(strings.TrimSpace(c.CanonicalName))
		i, seen := pos[key]
		if !seen {
			pos[key] = len(out)
			out = append(out, c.Clone())
			continue
		}
		m := &out[i]
		m.Variations = append(m.Variations, c.Variations...)
		if m.Gender == types.GenderUnknown {
			m.Gender = c.Gender
		}
		m.Normalize()
	}
	return out
}
