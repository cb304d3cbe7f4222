// Package pipeline runs the three attribution passes over a text.
//
// [Pipeline.ExtractCharacters] segments the text into coarse blocks,
// discovers the speaking characters and merges duplicates.
// [Pipeline.AssignSpeakers] segments the same text into fine blocks and
// labels every sentence with its speaker. [Pipeline.Run] does both and
// persists the result under a run ID.
//
// Only cancellation and input errors surface from a pipeline: transport
// failures and malformed model output are retried inside the call layer
// until they succeed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/storyvoice/internal/assign"
	"github.com/MrWong99/storyvoice/internal/extract"
	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/internal/merge"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/segment"
	"github.com/MrWong99/storyvoice/internal/store"
	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// ErrEmptyText is returned when the input contains no sentences.
var ErrEmptyText = errors.New("pipeline: text is empty")

// Stage names a pipeline step in [Progress] reports.
type Stage string

const (
	StageExtract Stage = "extract"
	StageMerge   Stage = "merge"
	StageAssign  Stage = "assign"
)

// Progress reports how many units of a stage are complete. Units are
// blocks for extraction and assignment and a single step for merging.
type Progress struct {
	Stage Stage
	Done  int
	Total int
}

// Pipeline wires the passes to one LLM provider. It is safe for concurrent
// use; each call builds its own pass state.
type Pipeline struct {
	provider      llm.Provider
	caller        *llmcall.Caller
	store         store.Store
	metrics       *observe.Metrics
	delays        []time.Duration
	extractTokens int
	assignChars   int
	concurrency   int
	temperature   float64
	mergeLLM      bool
	progress      func(Progress)
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithStore persists runs started with [Pipeline.Run]. Default: an
// in-memory store.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRetryDelays overrides the wait schedule between call attempts. A nil
// schedule keeps [llmcall.DefaultDelays]; an empty one retries at once.
func WithRetryDelays(d []time.Duration) Option {
	return func(p *Pipeline) { p.delays = d }
}

// WithBlockBudgets sets the coarse budget in tokens and the fine budget in
// characters. Non-positive values keep the segmenter defaults.
func WithBlockBudgets(extractTokens, assignChars int) Option {
	return func(p *Pipeline) {
		p.extractTokens = extractTokens
		p.assignChars = assignChars
	}
}

// WithConcurrency caps the assignment requests in flight.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.concurrency = n }
}

// WithTemperature sets the sampling temperature for every pass. Default: 0.1.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) { p.temperature = t }
}

// WithLLMMerge enables or disables the model-backed merge decision.
// Default: enabled.
func WithLLMMerge(enabled bool) Option {
	return func(p *Pipeline) { p.mergeLLM = enabled }
}

// WithProgress registers fn to be called after every extraction block, the
// merge step and every assignment batch. fn is never called concurrently.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New creates a pipeline that calls provider.
func New(provider llm.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:    provider,
		temperature: 0.1,
		mergeLLM:    true,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.store == nil {
		p.store = store.NewMemStore()
	}
	callOpts := []llmcall.Option{llmcall.WithMetrics(p.metrics)}
	if p.delays != nil {
		callOpts = append(callOpts, llmcall.WithDelays(p.delays...))
	}
	p.caller = llmcall.New(provider, callOpts...)
	return p
}

// Store returns the run store.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// ExtractCharacters discovers and merges the speaking characters of text.
func (p *Pipeline) ExtractCharacters(ctx context.Context, text string) (_ []types.Character, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ctx, span := observe.StartSpan(ctx, "pipeline.extract")
	defer func() { observe.EndSpan(span, err) }()

	blocks := segment.Coarse(text, p.extractBudget(ctx), p.provider.CountTokens)
	if len(blocks) == 0 {
		return nil, ErrEmptyText
	}

	start := time.Now()
	ex, err := extract.New(p.caller,
		extract.WithTemperature(p.temperature),
		extract.WithProgress(func(done, total int) {
			p.metrics.RecordBlocks(ctx, string(StageExtract), 1)
			p.report(StageExtract, done, total)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: extract: %w", err)
	}
	chars, err := ex.Run(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("pipeline: extract: %w", err)
	}
	p.metrics.RecordPass(ctx, string(StageExtract), time.Since(start))

	start = time.Now()
	mg, err := merge.New(p.caller, merge.WithLLM(p.mergeLLM), merge.WithTemperature(p.temperature))
	if err != nil {
		return nil, fmt.Errorf("pipeline: merge: %w", err)
	}
	merged, err := mg.Run(ctx, chars, len(blocks))
	if err != nil {
		return nil, fmt.Errorf("pipeline: merge: %w", err)
	}
	p.metrics.RecordPass(ctx, string(StageMerge), time.Since(start))
	p.report(StageMerge, 1, 1)

	observe.Logger(ctx).Info("characters extracted",
		"blocks", len(blocks), "found", len(chars), "merged", len(merged))
	return merged, nil
}

// extractBudget returns the coarse block budget, capped at half the
// model's context window when the window is known.
func (p *Pipeline) extractBudget(ctx context.Context) int {
	budget := p.extractTokens
	if budget <= 0 {
		budget = segment.DefaultExtractionTokens
	}
	if window := p.provider.Capabilities().ContextWindow; window > 0 && budget > window/2 {
		observe.Logger(ctx).Warn("extraction block budget exceeds half the context window; capping",
			"budget", budget, "context_window", window)
		budget = window / 2
	}
	return budget
}

// AssignSpeakers labels every sentence of text with one of chars, an
// unnamed placeholder or the narrator. The result holds one entry per
// sentence ordered by sentence index. voices may be nil.
func (p *Pipeline) AssignSpeakers(ctx context.Context, text string, chars []types.Character, voices types.VoiceLookup) (_ []types.SpeakerAssignment, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ctx, span := observe.StartSpan(ctx, "pipeline.assign")
	defer func() { observe.EndSpan(span, err) }()

	blocks := segment.Fine(text, p.assignChars)
	if len(blocks) == 0 {
		return nil, ErrEmptyText
	}
	observe.Logger(ctx).Debug("assigning speakers",
		"blocks", len(blocks), "sentences", segment.SentenceCount(blocks))

	start := time.Now()
	reported := 0
	pass := assign.New(p.caller,
		assign.WithConcurrency(p.concurrency),
		assign.WithTemperature(p.temperature),
		assign.WithProgress(func(done, total int) {
			p.metrics.RecordBlocks(ctx, string(StageAssign), done-reported)
			reported = done
			p.report(StageAssign, done, total)
		}),
	)
	out, err := pass.Run(ctx, blocks, chars, voices)
	if err != nil {
		return nil, fmt.Errorf("pipeline: assign: %w", err)
	}
	p.metrics.RecordPass(ctx, string(StageAssign), time.Since(start))
	p.metrics.RecordSentences(ctx, len(out))

	observe.Logger(ctx).Info("speakers assigned",
		"blocks", len(blocks), "sentences", len(out), "characters", len(chars))
	return out, nil
}

// Request describes one full run.
type Request struct {
	// ID identifies the run. Empty selects a new random UUID.
	ID string

	// Source names the input for the stored run.
	Source string

	// Text is the narrative to attribute.
	Text string

	// Voices resolves voice IDs. May be nil.
	Voices types.VoiceLookup
}

// Run extracts characters, assigns speakers and stores the run. The run is
// saved once after extraction, so a cancelled assignment can be resumed with
// [Pipeline.AssignStored].
func (p *Pipeline) Run(ctx context.Context, req Request) (*store.Run, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx = observe.WithRunID(ctx, id)
	log := observe.Logger(ctx)

	chars, err := p.ExtractCharacters(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	run := &store.Run{ID: id, Source: req.Source, Characters: chars}
	if err := p.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("pipeline: save run: %w", err)
	}
	log.Info("run characters saved", "characters", len(chars))

	assignments, err := p.AssignSpeakers(ctx, req.Text, chars, req.Voices)
	if err != nil {
		return nil, err
	}
	run.Assignments = assignments
	if err := p.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("pipeline: save run: %w", err)
	}
	log.Info("run complete", "sentences", len(assignments))
	return run, nil
}

// AssignStored assigns speakers to text using the characters of a stored
// run and saves the assignments back to that run.
func (p *Pipeline) AssignStored(ctx context.Context, runID, text string, voices types.VoiceLookup) (*store.Run, error) {
	ctx = observe.WithRunID(ctx, runID)
	run, err := p.store.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load run: %w", err)
	}
	assignments, err := p.AssignSpeakers(ctx, text, run.Characters, voices)
	if err != nil {
		return nil, err
	}
	run.Assignments = assignments
	if err := p.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("pipeline: save run: %w", err)
	}
	observe.Logger(ctx).Info("run assignments saved", "sentences", len(assignments))
	return run, nil
}

func (p *Pipeline) report(stage Stage, done, total int) {
	if p.progress != nil {
		p.progress(Progress{Stage: stage, Done: done, Total: total})
	}
}
