package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations never end a sentence even though they end in a period.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "st": {}, "sr": {}, "jr": {},
	"capt": {}, "col": {}, "gen": {}, "lt": {}, "sgt": {}, "rev": {}, "hon": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "mt": {},
}

// closers may trail terminal punctuation and still belong to the sentence.
const closers = "\"'”’»)]}"

// SplitSentences splits text into trimmed, non-empty sentences.
//
// A sentence ends at '.', '!', '?' or '…' (optionally followed by closing
// quotes or brackets) when the next word does not start with a lowercase
// letter and the period does not close a known abbreviation. Line breaks
// always end a sentence so dialogue paragraphs never merge.
func SplitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		out = append(out, splitLine(line)...)
	}
	return out
}

func normalizeNewlines(s string) string {
	return strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)
}

func splitLine(line string) []string {
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(line[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		i += size
		if !isTerminal(r) {
			continue
		}
		// Absorb runs like "?!" or "..." and trailing closing quotes.
		for i < len(line) {
			next, n := utf8.DecodeRuneInString(line[i:])
			if !isTerminal(next) && !strings.ContainsRune(closers, next) {
				break
			}
			i += n
		}
		if i >= len(line) {
			break
		}
		next, _ := utf8.DecodeRuneInString(line[i:])
		if !unicode.IsSpace(next) {
			continue
		}
		if r == '.' && endsWithAbbreviation(line[start:i], line[i:]) {
			continue
		}
		if startsLowercase(line[i:]) {
			continue
		}
		emit(i)
	}
	emit(len(line))
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// endsWithAbbreviation reports whether the last word of s (ignoring the
// trailing period) is a known abbreviation or an initial like "J.".
//
// A single capital letter only counts as an initial when it opens the
// sentence, follows another initial or is followed by one ("J. R. Hartley").
// Elsewhere it ends the sentence ("I met Plan B. It worked.").
func endsWithAbbreviation(s, rest string) bool {
	words := strings.FieldsFunc(strings.TrimRight(strings.TrimRight(s, closers), "."), isWordBreak)
	if len(words) == 0 {
		return false
	}
	word := words[len(words)-1]
	if isLetter(word) {
		if len(words) == 1 {
			return true
		}
		prev := words[len(words)-2]
		return strings.HasSuffix(prev, ".") && isLetter(strings.TrimSuffix(prev, ".")) ||
			startsWithInitial(rest)
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

func isWordBreak(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(closers, r) || r == '(' || r == '"' || r == '“'
}

// isLetter reports whether word is a single uppercase letter.
func isLetter(word string) bool {
	r, size := utf8.DecodeRuneInString(word)
	return size == len(word) && unicode.IsUpper(r)
}

// startsWithInitial reports whether the first word of s is an initial.
func startsWithInitial(s string) bool {
	words := strings.FieldsFunc(s, isWordBreak)
	if len(words) == 0 {
		return false
	}
	w, ok := strings.CutSuffix(words[0], ".")
	return ok && isLetter(w)
}

func startsLowercase(s string) bool {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}
