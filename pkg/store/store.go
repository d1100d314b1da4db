package store

import (
	"sync"

	"github.com/menta2k/photo-annotator/pkg/types"
)

// Store is the ordered, append-only annotation sequence of one session.
// Insertion order is display and submission order; duplicates are allowed.
type Store struct {
	mu    sync.RWMutex
	items []types.Annotation
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// Append commits an annotation and returns its index
func (s *Store) Append(a types.Annotation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, a)
	return len(s.items) - 1
}

// All returns a copy of the annotations in commit order
func (s *Store) All() []types.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Annotation, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of committed annotations
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Records returns the flat submission form of every annotation
func (s *Store) Records() []types.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Record, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a.Record())
	}
	return out
}
