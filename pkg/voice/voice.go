// Package voice maps speaker names to text-to-speech voice identifiers.
//
// A [Table] is the caller-supplied lookup the assignment pass uses to fill
// SpeakerAssignment.VoiceID. Names are matched exactly first and then
// case-insensitively, so a table written by hand ("john") still matches the
// canonical name the model chose ("John").
package voice

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// Table is a name→voice lookup. The zero value maps nothing and has an
// empty narrator voice. A Table must not be modified while it is in use.
type Table struct {
	// Narrator reads narration and every speaker without a mapped voice.
	Narrator string `yaml:"narrator"`

	// Characters maps speaker names to voice identifiers.
	Characters map[string]string `yaml:"characters"`
}

// New returns a Table with the given narrator voice and character voices.
// characters is copied.
func New(narrator string, characters map[string]string) *Table {
	t := &Table{Narrator: narrator, Characters: make(map[string]string, len(characters))}
	for name, id := range characters {
		t.Characters[name] = id
	}
	return t
}

// Load reads a YAML voice table from path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("voice: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("voice: parse %q: %w", path, err)
	}
	return t, nil
}

// LoadFromReader decodes a YAML voice table from r and validates it.
func LoadFromReader(r io.Reader) (*Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("voice: decode yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return New(t.Narrator, t.Characters), nil
}

// Validate reports empty speaker names and empty voice identifiers.
func (t *Table) Validate() error {
	var errs []error
	for name, id := range t.Characters {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("voice: characters contains an empty speaker name"))
		}
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Errorf("voice: characters[%q] has an empty voice id", name))
		}
	}
	return errors.Join(errs...)
}

// VoiceFor implements types.VoiceLookup. Exact matches win; otherwise the
// first name in sorted order that matches case-insensitively is used.
func (t *Table) VoiceFor(speaker string) (string, bool) {
	if t == nil {
		return "", false
	}
	if id, ok := t.Characters[speaker]; ok {
		return id, true
	}
	speaker = strings.TrimSpace(speaker)
	for _, name := range slices.Sorted(maps.Keys(t.Characters)) {
		if strings.EqualFold(strings.TrimSpace(name), speaker) {
			return t.Characters[name], true
		}
	}
	return "", false
}

// NarratorVoice implements types.VoiceLookup.
func (t *Table) NarratorVoice() string {
	if t == nil {
		return ""
	}
	return t.Narrator
}

// Len returns the number of mapped speakers.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Characters)
}

var _ types.VoiceLookup = (*Table)(nil)
