package merge

import (
	"strings"
	"unicode"
)

// Name specificity ranks, most specific first.
const (
	rankPlaceholder = iota
	rankTitleOnly
	rankTitleAndName
	rankPartialName
	rankFullName
)

var titles = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "dr": {}, "doctor": {}, "prof": {}, "professor": {},
	"sir": {}, "lady": {}, "lord": {}, "dame": {}, "king": {}, "queen": {}, "prince": {}, "princess": {},
	"captain": {}, "capt": {}, "commander": {}, "general": {}, "colonel": {}, "major": {}, "lieutenant": {},
	"sergeant": {}, "officer": {}, "detective": {}, "inspector": {}, "father": {}, "mother": {}, "sister": {},
	"brother": {}, "master": {}, "madam": {}, "elder": {}, "chief": {}, "duke": {}, "duchess": {}, "agent": {},
}

var placeholders = map[string]struct{}{
	"protagonist": {}, "narrator": {}, "main character": {}, "mc": {}, "hero": {}, "heroine": {},
	"stranger": {}, "someone": {}, "unknown": {}, "voice": {}, "man": {}, "woman": {}, "boy": {}, "girl": {},
	"figure": {}, "speaker": {}, "person": {}, "i": {}, "me": {},
}

var systemNames = map[string]struct{}{
	"system": {}, "interface": {}, "notification": {}, "system voice": {}, "system message": {},
	"system notification": {}, "status window": {}, "ai": {}, "computer": {}, "announcement": {},
}

// normalizeName lowercases name, strips surrounding brackets and punctuation
// and a leading article.
func normalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimFunc(n, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, article := range []string{"the ", "a ", "an "} {
		n = strings.TrimPrefix(n, article)
	}
	return strings.Join(strings.Fields(n), " ")
}

// specificity ranks how specific a name is: full proper name > partial name >
// title with name > title alone > generic placeholder.
func specificity(name string) int {
	n := normalizeName(name)
	if n == "" || strings.HasPrefix(n, "unnamed") || isSystemName(name) {
		return rankPlaceholder
	}
	if _, ok := placeholders[n]; ok {
		return rankPlaceholder
	}
	words := strings.Fields(name)
	if len(words) > 1 && strings.EqualFold(words[0], "the") {
		words = words[1:]
	}
	first := strings.TrimSuffix(strings.ToLower(words[0]), ".")
	if _, ok := titles[first]; ok {
		if len(words) == 1 {
			return rankTitleOnly
		}
		return rankTitleAndName
	}
	if !startsUpper(words[0]) {
		// "the old man", "guard": a description, not a name.
		return rankPlaceholder
	}
	if len(words) == 1 {
		return rankPartialName
	}
	return rankFullName
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// isSystemName reports whether name denotes a system or interface voice.
func isSystemName(name string) bool {
	n := normalizeName(name)
	if _, ok := systemNames[n]; ok {
		return true
	}
	return strings.HasPrefix(n, "system ") || strings.HasSuffix(n, " system")
}
