// Package merge resolves character entries that denote the same individual
// after extraction has run over several blocks.
//
// Deterministic rules run first ([ApplyLocalRules]). What remains can be
// handed to the model, which answers with explicit merge decisions that are
// validated to account for every entry exactly once ([Validator]) before
// they are applied ([Apply]). System voices left without a gender default to
// female at the end.
package merge

import (
	"context"

	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/prompt"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// Pass runs the merge.
type Pass struct {
	caller      *llmcall.Caller
	useLLM      bool
	temperature float64
	system      string
}

// Option configures a [Pass].
type Option func(*Pass)

// WithLLM enables or disables model-backed decisions. Default: enabled.
func WithLLM(enabled bool) Option {
	return func(p *Pass) { p.useLLM = enabled }
}

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(t float64) Option {
	return func(p *Pass) { p.temperature = t }
}

// New creates a merge pass. caller may be nil, which limits the pass to
// deterministic rules.
func New(caller *llmcall.Caller, opts ...Option) (*Pass, error) {
	p := &Pass{caller: caller, useLLM: true, temperature: 0.1}
	for _, o := range opts {
		o(p)
	}
	sys, err := prompt.Render(prompt.MergeSystem, prompt.MergeData{Schema: prompt.Schema(&response{})})
	if err != nil {
		return nil, err
	}
	p.system = sys
	return p, nil
}

// Needed reports whether merging can change anything: characters from a
// single block, or a single character, are already final.
func Needed(blocks, characters int) bool {
	return blocks > 1 && characters > 1
}

// Run merges chars extracted from the given number of blocks. The input is
// not modified.
func (p *Pass) Run(ctx context.Context, chars []types.Character, blocks int) ([]types.Character, error) {
	if !Needed(blocks, len(chars)) {
		out := make([]types.Character, len(chars))
		for i, c := range chars {
			out[i] = c.Clone()
		}
		return out, nil
	}
	log := observe.Logger(ctx)

	out := ApplyLocalRules(chars)
	log.Debug("local merge rules applied", "before", len(chars), "after", len(out))

	if p.useLLM && p.caller != nil && len(out) > 1 {
		decided, err := p.decide(ctx, out)
		if err != nil {
			return nil, err
		}
		log.Debug("merge decisions applied", "before", len(out), "after", len(decided))
		out = decided
	}

	DefaultSystemGender(out)
	return out, nil
}

func (p *Pass) decide(ctx context.Context, chars []types.Character) ([]types.Character, error) {
	ctx, span := observe.StartSpan(ctx, "merge.decide")
	defer span.End()

	indexed := make([]prompt.IndexedCharacter, len(chars))
	for i, c := range chars {
		indexed[i] = prompt.IndexedCharacter{Index: i, Character: c}
	}
	user, err := prompt.Render(prompt.MergeUser, prompt.MergeData{Characters: indexed, Hints: Hints(chars)})
	if err != nil {
		return nil, err
	}
	raw, err := p.caller.Call(ctx, llmcall.Request{
		Kind:         llmcall.KindMerge,
		SystemPrompt: p.system,
		UserPrompt:   user,
		Validate:     Validator(chars),
		Temperature:  p.temperature,
		JSON:         true,
	})
	if err != nil {
		return nil, err
	}
	decisions, err := ParseDecisions(raw)
	if err != nil {
		return nil, err
	}
	return Apply(chars, decisions), nil
}
