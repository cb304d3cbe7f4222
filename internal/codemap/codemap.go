// Package codemap assigns short, stable codes to speaker names so that
// assignment prompts and responses stay compact.
//
// Codes are drawn from a fixed 62-symbol alphabet (A-Z, 0-9, a-z) in order:
// canonical character names first, then the three reserved unnamed-speaker
// placeholders. Positions past the alphabet receive "X<index>" codes, which
// can never collide with a single-symbol code.
//
// A [Mapping] is immutable after [Build] and safe for concurrent reads; one
// mapping is shared by every assignment request of a run.
package codemap

import (
	"strconv"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// Alphabet is the ordered symbol set codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghijklmnopqrstuvwxyz"

// Reserved speaker labels for dialogue whose speaker is never named.
const (
	UnnamedMale    = "unnamed_male"
	UnnamedFemale  = "unnamed_female"
	UnnamedUnknown = "unnamed_unknown"
)

// Placeholders lists the reserved labels in code assignment order.
var Placeholders = []string{UnnamedMale, UnnamedFemale, UnnamedUnknown}

// PlaceholderGender returns the gender bucket of a reserved label.
func PlaceholderGender(name string) (types.Gender, bool) {
	switch name {
	case UnnamedMale:
		return types.GenderMale, true
	case UnnamedFemale:
		return types.GenderFemale, true
	case UnnamedUnknown:
		return types.GenderUnknown, true
	}
	return "", false
}

// Entry is one code/name pair.
type Entry struct {
	Code string
	Name string
}

// Mapping is a bidirectional name ↔ code table.
type Mapping struct {
	nameToCode map[string]string
	codeToName map[string]string
	entries    []Entry
}

// Build assigns codes to names in the given order and appends the three
// placeholder codes. Empty names, repeated names, and names equal to a
// placeholder label are skipped so the mapping stays injective.
func Build(names []string) *Mapping {
	m := &Mapping{
		nameToCode: make(map[string]string, len(names)+len(Placeholders)),
		codeToName: make(map[string]string, len(names)+len(Placeholders)),
	}
	reserved := make(map[string]struct{}, len(Placeholders))
	for _, p := range Placeholders {
		reserved[p] = struct{}{}
	}

	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := reserved[n]; ok {
			continue
		}
		if _, ok := m.nameToCode[n]; ok {
			continue
		}
		m.add(n)
	}
	for _, p := range Placeholders {
		m.add(p)
	}
	return m
}

func (m *Mapping) add(name string) {
	code := CodeAt(len(m.entries))
	m.nameToCode[name] = code
	m.codeToName[code] = name
	m.entries = append(m.entries, Entry{Code: code, Name: name})
}

// CodeAt returns the code for position i.
func CodeAt(i int) string {
	if i < len(Alphabet) {
		return Alphabet[i : i+1]
	}
	return "X" + strconv.Itoa(i)
}

// Code returns the code for name.
func (m *Mapping) Code(name string) (string, bool) {
	c, ok := m.nameToCode[name]
	return c, ok
}

// Name returns the name for code.
func (m *Mapping) Name(code string) (string, bool) {
	n, ok := m.codeToName[code]
	return n, ok
}

// Entries returns all pairs in assignment order.
func (m *Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of mapped names, placeholders included.
func (m *Mapping) Len() int {
	return len(m.entries)
}
