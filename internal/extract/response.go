package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// response is the JSON object the model must return for a block.
type response struct {
	Characters []entry `json:"characters" jsonschema:"required" jsonschema_description:"Every entity that speaks in the passage"`
}

type entry struct {
	CanonicalName string   `json:"canonicalName" jsonschema:"required,minLength=1" jsonschema_description:"Most complete proper name used for the speaker"`
	Variations    []string `json:"variations" jsonschema:"required,minItems=1" jsonschema_description:"All names, titles and epithets used for the speaker, including canonicalName"`
	Gender        string   `json:"gender" jsonschema:"required,enum=male,enum=female,enum=unknown"`
}

// looseEntry distinguishes missing fields from empty ones during validation.
type looseEntry struct {
	CanonicalName *string  `json:"canonicalName"`
	Variations    []string `json:"variations"`
	Gender        *string  `json:"gender"`
}

// Validate checks an extraction response and reports every problem found.
func Validate(raw string) types.ValidationResult {
	obj, ok := llmcall.ExtractJSONObject(raw)
	if !ok {
		return types.Invalid("response does not contain a JSON object")
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &top); err != nil {
		return types.Invalid("response is not valid JSON: " + err.Error())
	}
	rawChars, ok := top["characters"]
	if !ok {
		return types.Invalid(`missing top-level "characters" array`)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawChars, &items); err != nil || items == nil {
		return types.Invalid(`"characters" must be an array`)
	}

	var errs []string
	for i, item := range items {
		var e looseEntry
		if err := json.Unmarshal(item, &e); err != nil {
			errs = append(errs, fmt.Sprintf("characters[%d]: not a valid character object: %v", i, err))
			continue
		}
		if e.CanonicalName == nil || strings.TrimSpace(*e.CanonicalName) == "" {
			errs = append(errs, fmt.Sprintf("characters[%d]: canonicalName must be a non-empty string", i))
		}
		if !hasName(e.Variations) {
			errs = append(errs, fmt.Sprintf("characters[%d]: variations must contain at least one non-blank name", i))
		}
		if e.Gender == nil || !types.Gender(*e.Gender).IsValid() {
			errs = append(errs, fmt.Sprintf(`characters[%d]: gender must be one of "male", "female", "unknown"`, i))
		}
	}
	if len(errs) > 0 {
		return types.Invalid(errs...)
	}
	return types.Valid()
}

func hasName(names []string) bool {
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			return true
		}
	}
	return false
}

// Parse decodes a validated extraction response into normalised characters.
func Parse(raw string) ([]types.Character, error) {
	obj, ok := llmcall.ExtractJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("extract: no JSON object in response")
	}
	var r response
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return nil, fmt.Errorf("extract: decode response: %w", err)
	}
	out := make([]types.Character, 0, len(r.Characters))
	for _, e := range r.Characters {
		out = append(out, types.NewCharacter(e.CanonicalName, types.Gender(e.Gender), e.Variations...))
	}
	return out, nil
}
