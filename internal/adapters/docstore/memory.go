// Package docstore provides DocumentStore and CorpusSource adapters.
// The in-memory store serves reads; SQLite and PostgreSQL are corpus sources
// that feed it at startup.
package docstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// MemoryStore is an immutable in-memory corpus.
// It is never written after construction, so reads need no locking.
type MemoryStore struct {
	docs  []entities.Document
	index map[string]int // id -> position
}

// NewMemoryStore validates docs and builds the store. Every document needs
// a non-empty, unique ID.
func NewMemoryStore(docs []entities.Document) (*MemoryStore, error) {
	s := &MemoryStore{
		docs:  make([]entities.Document, len(docs)),
		index: make(map[string]int, len(docs)),
	}
	var errs []error
	for i, d := range docs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("document %d: empty id", i))
			continue
		}
		if prev, ok := s.index[d.ID]; ok {
			errs = append(errs, fmt.Errorf("document %d: duplicate id %q (first at %d)", i, d.ID, prev))
			continue
		}
		s.index[d.ID] = i
		s.docs[i] = d
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid corpus: %w", errors.Join(errs...))
	}
	return s, nil
}

// All returns a copy of the corpus in load order.
func (s *MemoryStore) All() []entities.Document {
	out := make([]entities.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// ByID looks up a document.
func (s *MemoryStore) ByID(id string) (entities.Document, error) {
	i, ok := s.index[id]
	if !ok {
		return entities.Document{}, fmt.Errorf("document %s: %w", id, entities.ErrNotFound)
	}
	return s.docs[i], nil
}

// Count returns the number of documents.
func (s *MemoryStore) Count() int {
	return len(s.docs)
}
