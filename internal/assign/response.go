package assign

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/MrWong99/storyvoice/internal/codemap"
	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// entryPattern is the only accepted line shape: <index>:<code>.
var entryPattern = regexp.MustCompile(`^(\d+):([A-Za-z0-9]+)$`)

// answerPattern matches anything that looks like an attempted entry, so that
// malformed answers such as "2: B" or "1:A." are validated instead of being
// trimmed away as chatter.
var answerPattern = regexp.MustCompile(`^\d+\s*:`)

// payload returns the response lines that make up the answer, with fences
// and surrounding chatter removed.
func payload(raw string) []string {
	return llmcall.ExtractLines(raw, answerPattern.MatchString)
}

// Validator returns the validation function for responses about block.
// Every line must be <index>:<code> with the index inside the block and the
// code known to m. An index may repeat only with the same code. An empty
// response is valid.
func Validator(block types.TextBlock, m *codemap.Mapping) llmcall.Validator {
	return func(raw string) types.ValidationResult {
		var errs []string
		seen := map[int]string{}
		for _, line := range payload(raw) {
			sub := entryPattern.FindStringSubmatch(line)
			if sub == nil {
				errs = append(errs, fmt.Sprintf("line %q is not in the form <index>:<code>", line))
				continue
			}
			idx, err := strconv.Atoi(sub[1])
			if err != nil || !block.Contains(idx) {
				errs = append(errs, fmt.Sprintf("line %q: index %s is outside the range %d..%d",
					line, sub[1], block.SentenceStartIndex, block.EndIndex()))
				continue
			}
			code := sub[2]
			if _, ok := m.Name(code); !ok {
				errs = append(errs, fmt.Sprintf("line %q: unknown speaker code %q", line, code))
				continue
			}
			if prev, dup := seen[idx]; dup && prev != code {
				errs = append(errs, fmt.Sprintf("line %q: sentence %d was already assigned code %q", line, idx, prev))
				continue
			}
			seen[idx] = code
		}
		if len(errs) > 0 {
			return types.Invalid(errs...)
		}
		return types.Valid()
	}
}

// Parse decodes a validated response into a sparse sentence index → speaker
// name map. Sentences that are absent are narration.
func Parse(raw string, m *codemap.Mapping) map[int]string {
	out := map[int]string{}
	for _, line := range payload(raw) {
		sub := entryPattern.FindStringSubmatch(line)
		if sub == nil {
			continue
		}
		idx, err := strconv.Atoi(sub[1])
		if err != nil {
			continue
		}
		if name, ok := m.Name(sub[2]); ok {
			out[idx] = name
		}
	}
	return out
}

// Assemble builds one assignment per sentence of block from the sparse map.
func Assemble(block types.TextBlock, speakers map[int]string, voices types.VoiceLookup) []types.SpeakerAssignment {
	out := make([]types.SpeakerAssignment, len(block.Sentences))
	for i, text := range block.Sentences {
		idx := block.SentenceStartIndex + i
		speaker, ok := speakers[idx]
		if !ok {
			speaker = types.NarratorSpeaker
		}
		out[i] = types.SpeakerAssignment{
			SentenceIndex: idx,
			Text:          text,
			Speaker:       speaker,
			VoiceID:       voiceFor(voices, speaker),
		}
	}
	return out
}

func voiceFor(voices types.VoiceLookup, speaker string) string {
	if voices == nil {
		return ""
	}
	if speaker != types.NarratorSpeaker {
		if v, ok := voices.VoiceFor(speaker); ok && v != "" {
			return v
		}
	}
	return voices.NarratorVoice()
}
