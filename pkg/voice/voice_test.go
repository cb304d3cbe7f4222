package voice_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/storyvoice/pkg/voice"
)

func TestTable_VoiceFor(t *testing.T) {
	t.Parallel()

	tbl := voice.New("v-narrator", map[string]string{
		"John":     "v-john",
		"john":     "v-lower",
		"Mary Ann": "v-mary",
	})

	tests := []struct {
		speaker string
		want    string
		ok      bool
	}{
		{"John", "v-john", true},
		{"john", "v-lower", true},
		{"MARY ANN", "v-mary", true},
		{" Mary Ann ", "v-mary", true},
		{"Mary", "", false},
		{"narrator", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.speaker, func(t *testing.T) {
			t.Parallel()
			got, ok := tbl.VoiceFor(tc.speaker)
			if got != tc.want || ok != tc.ok {
				t.Errorf("VoiceFor(%q) = %q, %v; want %q, %v", tc.speaker, got, ok, tc.want, tc.ok)
			}
		})
	}
	if tbl.NarratorVoice() != "v-narrator" {
		t.Errorf("NarratorVoice = %q", tbl.NarratorVoice())
	}
}

func TestNew_CopiesInput(t *testing.T) {
	t.Parallel()
	in := map[string]string{"John": "v-john"}
	tbl := voice.New("n", in)
	in["John"] = "changed"
	if id, _ := tbl.VoiceFor("John"); id != "v-john" {
		t.Errorf("table shares the caller's map: got %q", id)
	}
}

func TestNilTable(t *testing.T) {
	t.Parallel()
	var tbl *voice.Table
	if _, ok := tbl.VoiceFor("John"); ok {
		t.Error("nil table should map nothing")
	}
	if tbl.NarratorVoice() != "" || tbl.Len() != 0 {
		t.Error("nil table should be empty")
	}
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, tbl *voice.Table)
	}{
		{
			name: "valid",
			yaml: "narrator: v-n\ncharacters:\n  John: v-john\n  Mary: v-mary\n",
			check: func(t *testing.T, tbl *voice.Table) {
				if tbl.Len() != 2 || tbl.NarratorVoice() != "v-n" {
					t.Errorf("table = %+v", tbl)
				}
			},
		},
		{
			name: "empty document",
			yaml: "",
			check: func(t *testing.T, tbl *voice.Table) {
				if tbl.Len() != 0 {
					t.Errorf("table = %+v", tbl)
				}
			},
		},
		{name: "unknown field", yaml: "narator: v-n\n", wantErr: "decode yaml"},
		{name: "empty voice id", yaml: "characters:\n  John: \"\"\n", wantErr: `characters["John"] has an empty voice id`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tbl, err := voice.LoadFromReader(strings.NewReader(tc.yaml))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			tc.check(t, tbl)
		})
	}
}
