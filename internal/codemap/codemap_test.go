package codemap

import (
	"fmt"
	"testing"

	"github.com/MrWong99/storyvoice/pkg/types"
)

func TestBuild_OrderAndPlaceholders(t *testing.T) {
	t.Parallel()

	m := Build([]string{"John", "Mary"})
	want := []Entry{
		{"A", "John"},
		{"B", "Mary"},
		{"C", UnnamedMale},
		{"D", UnnamedFemale},
		{"E", UnnamedUnknown},
	}
	got := m.Entries()
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuild_NoCharacters(t *testing.T) {
	t.Parallel()

	m := Build(nil)
	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	if c, _ := m.Code(UnnamedMale); c != "A" {
		t.Errorf("unnamed male code = %q, want A", c)
	}
}

func TestBuild_Injective(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, 100)
	for i := range 100 {
		names = append(names, fmt.Sprintf("Character %d", i))
	}
	// Duplicates, empties and placeholder collisions must not break injectivity.
	names = append(names, "Character 3", "", UnnamedFemale)

	m := Build(names)
	if m.Len() != 103 {
		t.Fatalf("Len = %d, want 103", m.Len())
	}

	seen := map[string]string{}
	for _, n := range append(names[:100], Placeholders...) {
		code, ok := m.Code(n)
		if !ok {
			t.Fatalf("no code for %q", n)
		}
		if back, _ := m.Name(code); back != n {
			t.Errorf("codeToName[nameToCode[%q]] = %q", n, back)
		}
		if prev, dup := seen[code]; dup && prev != n {
			t.Errorf("code %q maps both %q and %q", code, prev, n)
		}
		seen[code] = n
	}
}

func TestCodeAt_Overflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		i    int
		want string
	}{
		{0, "A"},
		{25, "Z"},
		{26, "0"},
		{35, "9"},
		{36, "a"},
		{61, "z"},
		{62, "X62"},
		{140, "X140"},
	}
	for _, tc := range tests {
		if got := CodeAt(tc.i); got != tc.want {
			t.Errorf("CodeAt(%d) = %q, want %q", tc.i, got, tc.want)
		}
	}
}

func TestPlaceholderGender(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]types.Gender{
		UnnamedMale:    types.GenderMale,
		UnnamedFemale:  types.GenderFemale,
		UnnamedUnknown: types.GenderUnknown,
	} {
		got, ok := PlaceholderGender(name)
		if !ok || got != want {
			t.Errorf("PlaceholderGender(%q) = %q, %v", name, got, ok)
		}
	}
	if _, ok := PlaceholderGender("John"); ok {
		t.Error("John is not a placeholder")
	}
}
