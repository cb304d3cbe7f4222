package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory [Store].
type MemStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
	now  func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]*Run), now: time.Now}
}

// Save implements [Store].
func (s *MemStore) Save(_ context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	r.CreatedAt = now
	if prev, ok := s.runs[r.ID]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	r.UpdatedAt = now
	s.runs[r.ID] = r.Clone()
	return nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return r.Clone(), nil
}

// List implements [Store].
func (s *MemStore) List(_ context.Context) ([]Run, error) {
	s.mu.RLock()
	out := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		c := r.Clone()
		c.Assignments = nil
		out = append(out, *c)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Delete implements [Store].
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}
