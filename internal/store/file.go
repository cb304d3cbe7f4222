package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const runExt = ".json"

// FileStore is a [Store] that keeps one JSON document per run in a
// directory, so runs survive between CLI invocations without a database.
// Writes go to a temporary file that is renamed into place.
type FileStore struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

// OpenFileStore returns a FileStore rooted at dir, creating it if needed.
func OpenFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store: file store directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %q: %w", dir, err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory runs are stored in.
func (s *FileStore) Dir() string { return s.dir }

// Ping reports whether the run directory is still usable.
func (s *FileStore) Ping(_ context.Context) error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("store: %q is not a directory", s.dir)
	}
	return nil
}

// path maps a run ID to its file. IDs that could escape the directory are
// rejected.
func (s *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return "", fmt.Errorf("store: run id %q is not a valid file name", id)
	}
	return filepath.Join(s.dir, id+runExt), nil
}

// Save implements [Store].
func (s *FileStore) Save(_ context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}
	path, err := s.path(r.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	r.CreatedAt = now
	if prev, err := readRun(path); err == nil {
		r.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	r.UpdatedAt = now

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode run %q: %w", r.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+r.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store: save run %q: %w", r.ID, err)
	}
	return nil
}

// Get implements [Store].
func (s *FileStore) Get(_ context.Context, id string) (*Run, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := readRun(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return r, err
}

// List implements [Store]. Files that do not decode as runs are skipped.
func (s *FileStore) List(_ context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: list %q: %w", s.dir, err)
	}
	out := make([]Run, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != runExt {
			continue
		}
		r, err := readRun(filepath.Join(s.dir, name))
		if err != nil || r.ID == "" {
			continue
		}
		r.Assignments = nil
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Delete implements [Store].
func (s *FileStore) Delete(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: delete run %q: %w", id, err)
	}
	return nil
}

func readRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("store: decode %q: %w", path, err)
	}
	return &r, nil
}
