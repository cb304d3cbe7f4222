package llmcall

import (
	"strings"
)

// StripFences removes a surrounding Markdown code fence (```json ... ```),
// if present, and trims whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line including any language tag.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractJSONObject returns the outermost {...} object in s, ignoring fences
// and any prose the model wrapped around it. Braces inside JSON strings are
// skipped. It returns false when no balanced object is found.
func ExtractJSONObject(s string) (string, bool) {
	s = StripFences(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractLines returns the payload lines of a line-oriented response.
//
// Fences are stripped, lines are trimmed and blank lines dropped. Leading and
// trailing lines that isEntry rejects are treated as chatter around the
// payload ("Here are the assignments:") and removed. Rejected lines between
// two accepted ones are kept so that validation can report them.
func ExtractLines(s string, isEntry func(line string) bool) []string {
	var lines []string
	for _, l := range strings.Split(StripFences(s), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	first, last := -1, -1
	for i, l := range lines {
		if isEntry(l) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil
	}
	return lines[first : last+1]
}
