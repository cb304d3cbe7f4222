package merge

import (
	"strings"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// combine merges absorbed into kept: variations are unioned (absorbed
// canonical names included) and an unknown gender yields to a known one.
func combine(kept types.Character, absorbed ...types.Character) types.Character {
	out := kept.Clone()
	for _, a := range absorbed {
		out.Variations = append(out.Variations, a.CanonicalName)
		out.Variations = append(out.Variations, a.Variations...)
		if out.Gender == types.GenderUnknown {
			out.Gender = a.Gender
		}
	}
	out.Normalize()
	return out
}

// hasVariationFold reports whether c lists name as a variation, ignoring case.
func hasVariationFold(c types.Character, name string) bool {
	if c.HasVariation(name) {
		return true
	}
	for _, v := range c.Variations {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

// ApplyLocalRules resolves duplicates that need no judgement:
//
//   - System or interface entries whose names normalise to the same string
//     ("System", "[System]") collapse into one.
//   - An entry whose canonical name appears among the variations of exactly
//     one other gender-compatible entry is merged with it. The more specific
//     canonical name is kept; on a tie the listing entry wins.
//
// Rules are applied until nothing changes. Ambiguous cases (a name listed by
// several entries) are left alone.
func ApplyLocalRules(chars []types.Character) []types.Character {
	out := make([]types.Character, len(chars))
	for i, c := range chars {
		out[i] = c.Clone()
	}
	out = collapseSystemVoices(out)
	for {
		i, j, ok := findVariationMatch(out)
		if !ok {
			return out
		}
		keep, drop := j, i
		if specificity(out[i].CanonicalName) > specificity(out[j].CanonicalName) {
			keep, drop = i, j
		}
		out[keep] = combine(out[keep], out[drop])
		out = append(out[:drop], out[drop+1:]...)
	}
}

// findVariationMatch returns the first pair (i, j) where entry i's canonical
// name is listed by entry j and by no other compatible entry.
func findVariationMatch(chars []types.Character) (i, j int, ok bool) {
	for i := range chars {
		match := -1
		count := 0
		for j := range chars {
			if i == j || !chars[i].Gender.CompatibleWith(chars[j].Gender) {
				continue
			}
			if hasVariationFold(chars[j], chars[i].CanonicalName) {
				match = j
				count++
			}
		}
		if count == 1 {
			return i, match, true
		}
	}
	return 0, 0, false
}

func collapseSystemVoices(chars []types.Character) []types.Character {
	out := chars[:0]
	first := make(map[string]int)
	for _, c := range chars {
		if !isSystemName(c.CanonicalName) {
			out = append(out, c)
			continue
		}
		key := normalizeName(c.CanonicalName)
		if k, ok := first[key]; ok && out[k].Gender.CompatibleWith(c.Gender) {
			out[k] = combine(out[k], c)
			continue
		}
		first[key] = len(out)
		out = append(out, c)
	}
	return out
}

// DefaultSystemGender sets the gender of system or interface voices whose
// gender is still unknown to female.
func DefaultSystemGender(chars []types.Character) {
	for i := range chars {
		if chars[i].Gender == types.GenderUnknown && isSystemName(chars[i].CanonicalName) {
			chars[i].Gender = types.GenderFemale
		}
	}
}
