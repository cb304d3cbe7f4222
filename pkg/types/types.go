// Package types defines the shared types used across all storyvoice packages.
//
// These types form the lingua franca between the segmenter, the three
// attribution passes, the LLM providers, and the persistence layer. Each
// package keeps its own internal types; cross-cutting data structures live
// here to avoid circular imports.
package types

import (
	"slices"
	"strings"
)

// NarratorSpeaker is the speaker label of every sentence no character utters.
const NarratorSpeaker = "narrator"

// Gender is the inferred gender of a speaking entity. It only ever drives
// voice selection hints; it is never used to reject a speaker.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// IsValid reports whether g is one of the three recognised genders.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnknown:
		return true
	}
	return false
}

// CompatibleWith reports whether two entries with these genders may denote
// the same individual: equal, or at least one side unknown.
func (g Gender) CompatibleWith(other Gender) bool {
	return g == other || g == GenderUnknown || other == GenderUnknown || g == "" || other == ""
}

// TextBlock is a contiguous, globally indexed slice of sentences.
//
// Within one document blocks are gap-free and non-overlapping when sorted by
// SentenceStartIndex; the global index of Sentences[i] is
// SentenceStartIndex+i. Blocks are immutable once created by the segmenter.
type TextBlock struct {
	Sentences          []string `json:"sentences"`
	SentenceStartIndex int      `json:"sentenceStartIndex"`
}

// EndIndex returns the global index of the last sentence in the block, or
// SentenceStartIndex-1 for an empty block.
func (b TextBlock) EndIndex() int {
	return b.SentenceStartIndex + len(b.Sentences) - 1
}

// Contains reports whether the global sentence index idx falls inside b.
func (b TextBlock) Contains(idx int) bool {
	return idx >= b.SentenceStartIndex && idx <= b.EndIndex()
}

// Text joins the block's sentences with single spaces.
func (b TextBlock) Text() string {
	return strings.Join(b.Sentences, " ")
}

// Character is one speaking entity: a human, a narrator placeholder, a
// system/interface voice, or a non-human speaker.
//
// Variations is non-empty, deduplicated case-sensitively, and always
// contains CanonicalName. Use [NewCharacter] or [Character.Normalize] to
// establish that invariant.
type Character struct {
	CanonicalName string   `json:"canonicalName" yaml:"canonical_name"`
	Variations    []string `json:"variations" yaml:"variations"`
	Gender        Gender   `json:"gender" yaml:"gender"`
}

// NewCharacter returns a normalised Character.
func NewCharacter(name string, gender Gender, variations ...string) Character {
	c := Character{CanonicalName: name, Variations: variations, Gender: gender}
	c.Normalize()
	return c
}

// Normalize trims names, puts CanonicalName first in Variations, removes
// empty and duplicate variations, and maps invalid genders to unknown.
func (c *Character) Normalize() {
	c.CanonicalName = strings.TrimSpace(c.CanonicalName)
	vars := make([]string, 0, len(c.Variations)+1)
	seen := make(map[string]struct{}, len(c.Variations)+1)
	for _, v := range append([]string{c.CanonicalName}, c.Variations...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		vars = append(vars, v)
	}
	c.Variations = vars
	if !c.Gender.IsValid() {
		c.Gender = GenderUnknown
	}
}

// HasVariation reports whether name is one of c's variations (case-sensitive).
func (c Character) HasVariation(name string) bool {
	return slices.Contains(c.Variations, name)
}

// Clone returns a deep copy of c.
func (c Character) Clone() Character {
	c.Variations = slices.Clone(c.Variations)
	return c
}

// MergeDecision collapses the characters at indices Absorb into the
// character at index Keep. An unchanged character is a decision with an
// empty Absorb list.
type MergeDecision struct {
	Keep                int      `json:"keep"`
	Absorb              []int    `json:"absorb"`
	ResultingVariations []string `json:"variations,omitempty"`
	ResultingGender     Gender   `json:"gender,omitempty"`
}

// SpeakerAssignment labels one sentence with its speaker and the voice that
// should read it.
type SpeakerAssignment struct {
	SentenceIndex int    `json:"sentenceIndex"`
	Text          string `json:"text"`
	Speaker       string `json:"speaker"`
	VoiceID       string `json:"voiceId"`
}

// ValidationResult is produced for every call attempt. Errors are fed back
// to the model verbatim on the next attempt.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Valid returns a successful [ValidationResult].
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failed [ValidationResult] carrying errs.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// VoiceLookup resolves speaker names to voice identifiers. It is supplied by
// the caller (normally derived from a user's voice assignment).
type VoiceLookup interface {
	// VoiceFor returns the voice for speaker, or false when none is mapped.
	VoiceFor(speaker string) (voiceID string, ok bool)

	// NarratorVoice returns the voice used for narration and for every
	// speaker without a mapped voice.
	NarratorVoice() string
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports. The segmenter
// uses ContextWindow to sanity-check the extraction block budget.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}
