// Package llmcall runs LLM requests until the response passes validation.
//
// Every pass (extraction, merge, assignment) goes through [Caller.Call]. A
// call is retried on transport errors and on responses the pass-specific
// validator rejects; the validator's messages are sent back to the model on
// the next attempt so it can correct itself. Attempts continue with an
// escalating delay until one is valid or the context is cancelled. There is
// no attempt cap: the pipeline either converges or the caller gives up by
// cancelling.
package llmcall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// ErrCancelled is returned when the context ends before a valid response
// arrives. The context's cause is wrapped alongside it.
var ErrCancelled = errors.New("llmcall: cancelled")

// Kind names the pass a request belongs to. It labels logs and metrics.
type Kind string

const (
	KindExtract Kind = "extract"
	KindMerge   Kind = "merge"
	KindAssign  Kind = "assign"
)

// DefaultDelays is the wait schedule between attempts. The last entry
// repeats for every attempt beyond the schedule.
var DefaultDelays = []time.Duration{
	time.Second,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Validator inspects a raw response and reports every problem found.
type Validator func(response string) types.ValidationResult

// Request is one validated LLM call.
type Request struct {
	Kind         Kind
	SystemPrompt string
	UserPrompt   string
	Validate     Validator
	Temperature  float64

	// JSON asks the provider for a JSON-object reply where supported.
	JSON bool
}

// Caller issues validated calls against a provider. It is safe for
// concurrent use.
type Caller struct {
	provider llm.Provider
	delays   []time.Duration
	metrics  *observe.Metrics
}

// Option configures a [Caller].
type Option func(*Caller)

// WithDelays overrides the retry schedule. An empty schedule retries
// without waiting.
func WithDelays(d ...time.Duration) Option {
	return func(c *Caller) {
		c.delays = d
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Caller) {
		c.metrics = m
	}
}

// New creates a Caller for p.
func New(p llm.Provider, opts ...Option) *Caller {
	c := &Caller{
		provider: p,
		delays:   DefaultDelays,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Provider returns the underlying provider.
func (c *Caller) Provider() llm.Provider {
	return c.provider
}

// Call sends req until req.Validate accepts a response and returns that
// response verbatim. It returns an error wrapping [ErrCancelled] only when
// ctx ends first.
//
// A transport error leaves the previous validation errors in place, so the
// next attempt still carries the model's last known mistakes.
func (c *Caller) Call(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	log := observe.Logger(ctx).With("kind", string(req.Kind))
	var prevErrors []string

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return "", cancelled(ctx)
		}

		resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: req.SystemPrompt,
			Messages:     buildMessages(req.UserPrompt, prevErrors),
			Temperature:  req.Temperature,
			JSONOutput:   req.JSON,
		})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", cancelled(ctx)
			}
			c.metrics.RecordAttempt(ctx, string(req.Kind), observe.StatusTransportError)
			log.Warn("llm call failed", "attempt", attempt+1, "error", err)

		default:
			res := req.Validate(resp.Content)
			if res.Valid {
				c.metrics.RecordAttempt(ctx, string(req.Kind), observe.StatusOK)
				c.metrics.RecordCall(ctx, string(req.Kind), time.Since(start))
				if attempt > 0 {
					log.Info("llm call succeeded after retries", "attempts", attempt+1)
				}
				return resp.Content, nil
			}
			c.metrics.RecordAttempt(ctx, string(req.Kind), observe.StatusInvalid)
			log.Warn("llm response rejected", "attempt", attempt+1, "errors", len(res.Errors))
			log.Debug("validation errors", "errors", res.Errors)
			prevErrors = res.Errors
		}

		if err := c.wait(ctx, attempt); err != nil {
			return "", err
		}
	}
}

func (c *Caller) wait(ctx context.Context, attempt int) error {
	if len(c.delays) == 0 {
		return nil
	}
	d := c.delays[min(attempt, len(c.delays)-1)]
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return cancelled(ctx)
	case <-t.C:
		return nil
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// buildMessages returns the user prompt followed, when the previous attempt
// was rejected, by a correction message listing what was wrong with it.
func buildMessages(userPrompt string, prevErrors []string) []types.Message {
	msgs := []types.Message{{Role: "user", Content: userPrompt}}
	if len(prevErrors) == 0 {
		return msgs
	}
	var b strings.Builder
	b.WriteString("Your previous response had the following errors:\n")
	for _, e := range prevErrors {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("Correct them and answer again using exactly the required format.")
	return append(msgs, types.Message{Role: "user", Content: b.String()})
}
