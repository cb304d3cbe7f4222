// Package assign labels every sentence with its speaker.
//
// Fine blocks are sent to the model in batches of at most the configured
// concurrency; the requests of a batch run in parallel and batches run one
// after another, so no more than that many requests are ever in flight. One
// code mapping is built per run and shared by all requests. The model
// answers sparsely, listing only dialogue sentences; everything else is
// narration.
package assign

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/storyvoice/internal/codemap"
	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/prompt"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// DefaultConcurrency is the number of blocks assigned in parallel.
const DefaultConcurrency = 20

// Pass runs speaker assignment.
type Pass struct {
	caller      *llmcall.Caller
	concurrency int
	temperature float64
	progress    func(done, total int)
}

// Option configures a [Pass].
type Option func(*Pass)

// WithConcurrency sets the batch size. Non-positive values select
// [DefaultConcurrency].
func WithConcurrency(n int) Option {
	return func(p *Pass) { p.concurrency = n }
}

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(t float64) Option {
	return func(p *Pass) { p.temperature = t }
}

// WithProgress registers fn to be called after every batch with the number
// of blocks completed so far.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pass) { p.progress = fn }
}

// New creates an assignment pass.
func New(caller *llmcall.Caller, opts ...Option) *Pass {
	p := &Pass{caller: caller, temperature: 0.1}
	for _, o := range opts {
		o(p)
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	return p
}

// run holds what every request of one Run shares.
type run struct {
	mapping *codemap.Mapping
	system  string
	voices  types.VoiceLookup
}

// Run assigns speakers to every sentence of blocks and returns the
// assignments ordered by sentence index. voices may be nil, leaving voice
// IDs empty.
func (p *Pass) Run(ctx context.Context, blocks []types.TextBlock, chars []types.Character, voices types.VoiceLookup) ([]types.SpeakerAssignment, error) {
	r, err := p.prepare(chars, voices)
	if err != nil {
		return nil, err
	}

	results := make([][]types.SpeakerAssignment, len(blocks))
	for start := 0; start < len(blocks); start += p.concurrency {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", llmcall.ErrCancelled, context.Cause(ctx))
		}
		end := min(start+p.concurrency, len(blocks))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := p.block(gctx, r, blocks[i])
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		observe.Logger(ctx).Debug("assignment batch done", "blocks", end-start, "done", end, "total", len(blocks))
		if p.progress != nil {
			p.progress(end, len(blocks))
		}
	}

	var out []types.SpeakerAssignment
	for _, res := range results {
		out = append(out, res...)
	}
	slices.SortFunc(out, func(a, b types.SpeakerAssignment) int {
		return a.SentenceIndex - b.SentenceIndex
	})
	return out, nil
}

func (p *Pass) prepare(chars []types.Character, voices types.VoiceLookup) (*run, error) {
	names := make([]string, len(chars))
	for i, c := range chars {
		names[i] = c.CanonicalName
	}
	m := codemap.Build(names)

	byName := make(map[string]types.Character, len(chars))
	for _, c := range chars {
		if _, dup := byName[c.CanonicalName]; !dup {
			byName[c.CanonicalName] = c
		}
	}
	data := prompt.AssignData{}
	for _, e := range m.Entries() {
		if g, reserved := codemap.PlaceholderGender(e.Name); reserved {
			switch g {
			case types.GenderMale:
				data.UnnamedMale = e.Code
			case types.GenderFemale:
				data.UnnamedFemale = e.Code
			default:
				data.UnnamedUnknown = e.Code
			}
			continue
		}
		c := byName[e.Name]
		data.Roster = append(data.Roster, prompt.RosterEntry{
			Code:    e.Code,
			Name:    e.Name,
			Aliases: aliases(c),
			Gender:  c.Gender,
		})
	}

	sys, err := prompt.Render(prompt.AssignSystem, data)
	if err != nil {
		return nil, err
	}
	return &run{mapping: m, system: sys, voices: voices}, nil
}

func aliases(c types.Character) []string {
	out := make([]string, 0, len(c.Variations))
	for _, v := range c.Variations {
		if v != c.CanonicalName {
			out = append(out, v)
		}
	}
	return out
}

func (p *Pass) block(ctx context.Context, r *run, b types.TextBlock) ([]types.SpeakerAssignment, error) {
	ctx, span := observe.StartSpan(ctx, "assign.block")
	defer span.End()

	lines := make([]prompt.Line, len(b.Sentences))
	for i, s := range b.Sentences {
		lines[i] = prompt.Line{Index: b.SentenceStartIndex + i, Text: s}
	}
	user, err := prompt.Render(prompt.AssignUser, prompt.AssignData{
		Lines: lines,
		First: b.SentenceStartIndex,
		Last:  b.EndIndex(),
	})
	if err != nil {
		return nil, err
	}
	raw, err := p.caller.Call(ctx, llmcall.Request{
		Kind:         llmcall.KindAssign,
		SystemPrompt: r.system,
		UserPrompt:   user,
		Validate:     Validator(b, r.mapping),
		Temperature:  p.temperature,
	})
	if err != nil {
		return nil, err
	}
	return Assemble(b, Parse(raw, r.mapping), r.voices), nil
}
