package merge

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/storyvoice/pkg/types"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// similarity scores two names. Names that share a Double Metaphone code on
// any word are phonetic candidates and need only the lower Jaro-Winkler
// threshold; all others must clear the fuzzy threshold.
func similarity(a, b string) (score float64, phonetic bool) {
	aTokens := strings.Fields(normalizeName(a))
	bTokens := strings.Fields(normalizeName(b))
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0, false
	}
	phonetic = codesOverlap(codesForTokens(aTokens), codesForTokens(bTokens))

	score = matchr.JaroWinkler(strings.Join(aTokens, " "), strings.Join(bTokens, " "), false)
	for _, at := range aTokens {
		for _, bt := range bTokens {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score, phonetic
}

func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// Hints lists gender-compatible pairs of entries whose canonical names are
// spelled or sound alike. They are shown to the model as advice; nothing is
// merged on their strength alone.
func Hints(chars []types.Character) []string {
	var hints []string
	for i := range chars {
		for j := i + 1; j < len(chars); j++ {
			a, b := chars[i], chars[j]
			if !a.Gender.CompatibleWith(b.Gender) {
				continue
			}
			score, phonetic := similarity(a.CanonicalName, b.CanonicalName)
			threshold := defaultFuzzyThreshold
			if phonetic {
				threshold = defaultPhoneticThreshold
			}
			if score < threshold {
				continue
			}
			hints = append(hints, fmt.Sprintf("%d %q and %d %q (similarity %.2f)", i, a.CanonicalName, j, b.CanonicalName, score))
		}
	}
	return hints
}
