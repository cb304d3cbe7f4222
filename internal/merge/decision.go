package merge

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/pkg/types"
)

// response is the JSON object the model returns for a merge request.
type response struct {
	Merges    []mergeEntry `json:"merges" jsonschema:"required" jsonschema_description:"Groups of entries that denote the same individual"`
	Unchanged []int        `json:"unchanged" jsonschema:"required" jsonschema_description:"Indices of entries that stay as they are"`
}

type mergeEntry struct {
	Keep       int      `json:"keep" jsonschema:"required" jsonschema_description:"Index of the entry whose canonical name survives"`
	Absorb     []int    `json:"absorb" jsonschema:"required,minItems=1" jsonschema_description:"Indices of entries merged into keep"`
	Variations []string `json:"variations" jsonschema:"required" jsonschema_description:"All names of the merged individual"`
	Gender     string   `json:"gender" jsonschema:"required,enum=male,enum=female,enum=unknown"`
}

func decode(raw string) (response, error) {
	obj, ok := llmcall.ExtractJSONObject(raw)
	if !ok {
		return response{}, fmt.Errorf("response does not contain a JSON object")
	}
	var r response
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return response{}, fmt.Errorf("response is not valid JSON of the required shape: %v", err)
	}
	return r, nil
}

// Validator returns the validation function for a merge over chars: every
// index 0..len(chars)-1 appears exactly once, absorb lists are non-empty,
// genders are valid and no merge joins two different known genders.
func Validator(chars []types.Character) llmcall.Validator {
	n := len(chars)
	return func(raw string) types.ValidationResult {
		r, err := decode(raw)
		if err != nil {
			return types.Invalid(err.Error())
		}

		var errs []string
		seen := make(map[int]string, n)
		use := func(idx int, where string) bool {
			if idx < 0 || idx >= n {
				errs = append(errs, fmt.Sprintf("%s: index %d is out of range 0..%d", where, idx, n-1))
				return false
			}
			if prev, dup := seen[idx]; dup {
				errs = append(errs, fmt.Sprintf("%s: index %d already used in %s", where, idx, prev))
				return false
			}
			seen[idx] = where
			return true
		}

		for mi, m := range r.Merges {
			where := fmt.Sprintf("merges[%d]", mi)
			keepOK := use(m.Keep, where+".keep")
			if len(m.Absorb) == 0 {
				errs = append(errs, where+": absorb must list at least one index; use unchanged instead")
			}
			if m.Gender != "" && !types.Gender(m.Gender).IsValid() {
				errs = append(errs, fmt.Sprintf(`%s: gender must be one of "male", "female", "unknown"`, where))
			}
			for _, a := range m.Absorb {
				if !use(a, where+".absorb") || !keepOK {
					continue
				}
				if !chars[m.Keep].Gender.CompatibleWith(chars[a].Gender) {
					errs = append(errs, fmt.Sprintf("%s: cannot merge %q (%s) with %q (%s); their genders conflict",
						where, chars[m.Keep].CanonicalName, chars[m.Keep].Gender, chars[a].CanonicalName, chars[a].Gender))
				}
			}
		}
		for _, u := range r.Unchanged {
			use(u, "unchanged")
		}

		for i := range n {
			if _, ok := seen[i]; !ok {
				errs = append(errs, fmt.Sprintf("index %d (%q) is missing; list it in a merge or in unchanged", i, chars[i].CanonicalName))
			}
		}
		if len(errs) > 0 {
			return types.Invalid(errs...)
		}
		return types.Valid()
	}
}

// ParseDecisions converts a validated response into decisions, one per
// output character. Unchanged entries become decisions with no absorb list.
func ParseDecisions(raw string) ([]types.MergeDecision, error) {
	r, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	out := make([]types.MergeDecision, 0, len(r.Merges)+len(r.Unchanged))
	for _, m := range r.Merges {
		out = append(out, types.MergeDecision{
			Keep:                m.Keep,
			Absorb:              slices.Clone(m.Absorb),
			ResultingVariations: slices.Clone(m.Variations),
			ResultingGender:     types.Gender(m.Gender),
		})
	}
	for _, u := range r.Unchanged {
		out = append(out, types.MergeDecision{Keep: u})
	}
	return out, nil
}

// Apply executes decisions against chars. The output is ordered by the keep
// index. A decision's gender only fills in an unknown one. Every absorbed entry's names end up among the kept entry's
// variations, whatever the decision itself listed, so no name is lost.
func Apply(chars []types.Character, decisions []types.MergeDecision) []types.Character {
	sorted := slices.Clone(decisions)
	slices.SortFunc(sorted, func(a, b types.MergeDecision) int { return a.Keep - b.Keep })

	out := make([]types.Character, 0, len(sorted))
	for _, d := range sorted {
		absorbed := make([]types.Character, 0, len(d.Absorb))
		for _, a := range d.Absorb {
			absorbed = append(absorbed, chars[a])
		}
		c := chars[d.Keep].Clone()
		c.Variations = append(c.Variations, d.ResultingVariations...)
		if c.Gender == types.GenderUnknown && d.ResultingGender.IsValid() {
			c.Gender = d.ResultingGender
		}
		out = append(out, combine(c, absorbed...))
	}
	return out
}
