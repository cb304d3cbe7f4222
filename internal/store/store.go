// Package store persists attribution runs: the character roster produced by
// extraction and merging, and the per-sentence speaker assignments.
//
// A run is saved after character extraction and again after assignment, so
// `storyvoice assign --run <id>` can reuse characters a previous `extract`
// produced. [MemStore] keeps runs for the lifetime of the process,
// [FileStore] keeps one JSON file per run in a directory and
// [PostgresStore] keeps them in PostgreSQL.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/MrWong99/storyvoice/pkg/types"
)

// ErrNotFound is returned when no run with the requested ID exists.
var ErrNotFound = errors.New("store: run not found")

// Run is one attribution run over a source text.
type Run struct {
	// ID is the run identifier (a UUID string when created by the pipeline).
	ID string `json:"id"`

	// Source names the input, usually a file path. Informational only.
	Source string `json:"source,omitempty"`

	// Characters is the merged character set.
	Characters []types.Character `json:"characters"`

	// Assignments holds one entry per sentence ordered by SentenceIndex.
	// Empty until the assignment pass has run.
	Assignments []types.SpeakerAssignment `json:"assignments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the fields every store requires.
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("store: run id must not be empty")
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	out := *r
	out.Characters = make([]types.Character, len(r.Characters))
	for i, c := range r.Characters {
		out.Characters[i] = c.Clone()
	}
	out.Assignments = slices.Clone(r.Assignments)
	return &out
}

// Store saves and loads runs. Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or replaces the run with r.ID, including all of its
	// characters and assignments. CreatedAt and UpdatedAt are set on r.
	Save(ctx context.Context, r *Run) error

	// Get returns the run with the given ID or an error wrapping [ErrNotFound].
	Get(ctx context.Context, id string) (*Run, error)

	// List returns every run without its assignments, newest first.
	List(ctx context.Context) ([]Run, error)

	// Delete removes a run. Deleting a non-existent run is not an error.
	Delete(ctx context.Context, id string) error
}
