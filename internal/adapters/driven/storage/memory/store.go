// Package memory provides an in-memory document store, primarily for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cartloop-labs/cartloop-cli/internal/adapters/driven/storage"
	"github.com/cartloop-labs/cartloop-cli/internal/core/domain"
	"github.com/cartloop-labs/cartloop-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.DocumentStore = (*Store)(nil)

type record struct {
	doc domain.Document
	seq int64
}

type localRecord struct {
	rev  string
	body []byte
}

// Store is an in-memory implementation of driven.DocumentStore. It carries
// the same revision, tombstone and change-feed semantics as the SQLite
// adapter so services can be tested against it.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]record
	local map[string]localRecord
	seq   int64
}

// NewStore creates a new in-memory document store.
func NewStore() *Store {
	return &Store{
		docs:  make(map[string]record),
		local: make(map[string]localRecord),
	}
}

// Get retrieves a live document by id.
func (s *Store) Get(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	if !ok || rec.doc.Deleted {
		return nil, domain.ErrNotFound
	}
	doc := rec.doc
	return &doc, nil
}

// Put creates or updates a document under the revision check.
func (s *Store) Put(_ context.Context, doc *domain.Document) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *doc
	if err := s.checkRev(stored.ID, stored.Rev); err != nil {
		return "", "", err
	}

	stored.Rev = storage.NextRev(stored.Rev)
	s.seq++
	s.docs[stored.ID] = record{doc: stored, seq: s.seq}
	return stored.ID, stored.Rev, nil
}

// RemoveByRev tombstones a document, authorised by its current revision.
func (s *Store) RemoveByRev(_ context.Context, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok || rec.doc.Deleted {
		return domain.ErrNotFound
	}
	if rec.doc.Rev != rev {
		return fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
	}

	tomb := rec.doc
	tomb.Deleted = true
	tomb.Rev = storage.NextRev(rev)
	tomb.UpdatedAt = domain.Timestamp()
	s.seq++
	s.docs[id] = record{doc: tomb, seq: s.seq}
	return nil
}

// BulkWrite applies each document with Put semantics, reporting per-document
// results.
func (s *Store) BulkWrite(_ context.Context, docs []domain.Document) ([]driven.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]driven.BulkResult, 0, len(docs))
	for _, doc := range docs {
		if err := s.checkRev(doc.ID, doc.Rev); err != nil {
			results = append(results, driven.BulkResult{ID: doc.ID, Err: err})
			continue
		}
		doc.Rev = storage.NextRev(doc.Rev)
		s.seq++
		s.docs[doc.ID] = record{doc: doc, seq: s.seq}
		results = append(results, driven.BulkResult{ID: doc.ID, Rev: doc.Rev})
	}
	return results, nil
}

// FindByIndex returns live documents matching the selector.
func (s *Store) FindByIndex(_ context.Context, sel driven.Selector) ([]domain.Document, error) {
	if sel.Type == "" {
		return nil, fmt.Errorf("%w: selector requires a type", domain.ErrValidation)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []domain.Document
	for _, rec := range s.docs {
		if rec.doc.Deleted || rec.doc.Type != sel.Type {
			continue
		}
		if sel.List != "" && rec.doc.List != sel.List {
			continue
		}
		docs = append(docs, rec.doc)
	}
	return docs, nil
}

// Changes returns feed entries with seq > since, in order.
func (s *Store) Changes(_ context.Context, since int64) ([]driven.Change, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var changes []driven.Change
	for _, rec := range s.docs {
		if rec.seq > since {
			changes = append(changes, driven.Change{Seq: rec.seq, Doc: rec.doc})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Seq < changes[j].Seq })

	last := since
	if n := len(changes); n > 0 {
		last = changes[n-1].Seq
	}
	return changes, last, nil
}

// ApplyReplicated upserts inbound documents last-writer-wins.
func (s *Store) ApplyReplicated(_ context.Context, docs []domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if doc.Rev == "" {
			doc.Rev = storage.NextRev("")
		}
		s.seq++
		s.docs[doc.ID] = record{doc: doc, seq: s.seq}
	}
	return nil
}

// GetLocal reads a local-only document.
func (s *Store) GetLocal(_ context.Context, id string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.local[id]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	body := make([]byte, len(rec.body))
	copy(body, rec.body)
	return body, rec.rev, nil
}

// PutLocal writes a local-only document under the revision check.
func (s *Store) PutLocal(_ context.Context, id, rev string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.local[id]; ok && existing.rev != rev {
		return "", fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
	} else if !ok && rev != "" {
		return "", fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
	}

	newRev := storage.NextRev(rev)
	stored := make([]byte, len(body))
	copy(stored, body)
	s.local[id] = localRecord{rev: newRev, body: stored}
	return newRev, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// checkRev validates a write's revision against the stored record.
// Caller must hold the write lock.
func (s *Store) checkRev(id, rev string) error {
	existing, ok := s.docs[id]
	switch {
	case ok && existing.doc.Rev != rev:
		return fmt.Errorf("%w: stale revision for %s", domain.ErrConflict, id)
	case !ok && rev != "":
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	default:
		return nil
	}
}
