// Package prompt renders the system and user prompts of the three
// attribution passes.
//
// Prompts are text/template files embedded from templates/. They are parsed
// once at package initialisation; a template error is a programming error
// and panics at start-up rather than on the first LLM call.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/invopop/jsonschema"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// Template names.
const (
	ExtractSystem = "extract_system.tmpl"
	ExtractUser   = "extract_user.tmpl"
	MergeSystem   = "merge_system.tmpl"
	MergeUser     = "merge_user.tmpl"
	AssignSystem  = "assign_system.tmpl"
	AssignUser    = "assign_user.tmpl"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("prompts").Funcs(template.FuncMap{
		"join": strings.Join,
	}).ParseFS(templateFS, "templates/*.tmpl"),
)

// Render executes the named template with data.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("prompt: render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Schema returns the indented JSON Schema of v's type. Struct fields become
// required through `jsonschema:"required"` tags and additional properties
// are forbidden, so the schema doubles as a precise output contract for the
// model.
func Schema(v any) string {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(v)
	// Draft and id fields are noise inside a prompt.
	s.Version = ""
	s.ID = ""
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic("prompt: marshal schema: " + err.Error())
	}
	return string(b)
}

// ExtractData feeds [ExtractSystem] and [ExtractUser].
type ExtractData struct {
	// Known lists characters found in earlier blocks.
	Known  []types.Character
	Text   string
	Schema string
}

// IndexedCharacter is a character together with its position in the merge
// input.
type IndexedCharacter struct {
	Index int
	types.Character
}

// MergeData feeds [MergeSystem] and [MergeUser].
type MergeData struct {
	Characters []IndexedCharacter
	// Hints are advisory "possibly the same" notes from name similarity.
	Hints  []string
	Schema string
}

// RosterEntry is one coded speaker in an assignment prompt.
type RosterEntry struct {
	Code    string
	Name    string
	Aliases []string
	Gender  types.Gender
}

// Line is one numbered sentence in an assignment prompt.
type Line struct {
	Index int
	Text  string
}

// AssignData feeds [AssignSystem] and [AssignUser].
type AssignData struct {
	Roster []RosterEntry
	// Unnamed holds the codes of the male, female and unknown placeholders.
	UnnamedMale, UnnamedFemale, UnnamedUnknown string
	Lines                                      []Line
	First, Last                                int
}
