// Package memstore provides the in-process fallback backend: one map per
// collection, deep-copied on the way in and out. It is the store the failover
// controller degrades to, and the store tests run against.
package memstore

import (
	"context"
	"sync"

	"github.com/greenbank/points-engine/docstore"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[int64]docstore.Payload
}

func New() *Store {
	return &Store{collections: make(map[string]map[int64]docstore.Payload)}
}

func (s *Store) ensureLocked(collection string) map[int64]docstore.Payload {
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[int64]docstore.Payload)
		s.collections[collection] = col
	}
	return col
}

func (s *Store) Upsert(_ context.Context, collection string, id int64, payload docstore.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(collection)[id] = docstore.ClonePayload(payload)
	return nil
}

func (s *Store) Get(_ context.Context, collection string, id int64) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Payload: docstore.ClonePayload(payload)}, nil
}

func (s *Store) Scroll(_ context.Context, collection string, limit int) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]docstore.Document, 0, limit)
	for id, payload := range s.collections[collection] {
		if len(docs) >= limit {
			break
		}
		docs = append(docs, docstore.Document{ID: id, Payload: docstore.ClonePayload(payload)})
	}
	return docs, nil
}

func (s *Store) Delete(_ context.Context, collection string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *Store) BatchUpsert(ctx context.Context, collection string, docs []docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.ensureLocked(collection)
	for _, d := range docs {
		col[d.ID] = docstore.ClonePayload(d.Payload)
	}
	return nil
}

// Len reports the record count of a collection. Used by health reporting.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
