package redaction

import (
	"fmt"
	"sync"
)

// Store is the in-memory collection of documents under review.
//
// Every method runs under the store lock so that one operation is a single
// read-modify-write step and later calls observe its result. Callers only ever
// see copies; the documents held by the store are never shared.
type Store struct {
	mu    sync.RWMutex
	docs  []*Document
	index map[int64]*Document
	info  CaseInfo
}

// NewStore creates an empty document store
func NewStore() *Store {
	return &Store{
		index: make(map[int64]*Document),
	}
}

// Add ingests a document. Its applied count is recomputed from its records.
func (s *Store) Add(doc Document) error {
	seen := make(map[int64]struct{}, len(doc.Redactions))
	for _, r := range doc.Redactions {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("redaction %d in document %d: %w", r.ID, doc.ID, ErrDuplicate)
		}
		seen[r.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[doc.ID]; exists {
		return fmt.Errorf("document %d: %w", doc.ID, ErrDuplicate)
	}

	stored := doc.clone()
	stored.recomputeApplied()
	s.docs = append(s.docs, &stored)
	s.index[stored.ID] = &stored
	return nil
}

// Get returns a snapshot of the document with the given id
func (s *Store) Get(id int64) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.index[id]
	if !ok {
		return Document{}, false
	}
	return doc.clone(), true
}

// List returns snapshots of all documents in ingestion order
func (s *Store) List() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, len(s.docs))
	for i, doc := range s.docs {
		out[i] = doc.clone()
	}
	return out
}

// Len returns the number of documents held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Update applies fn to the stored document under the write lock and recomputes
// its applied count. fn must validate before mutating: when it returns an
// error the document is expected to be unchanged.
func (s *Store) Update(id int64, fn func(*Document) error) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.index[id]
	if !ok {
		return Document{}, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err := fn(doc); err != nil {
		return Document{}, err
	}
	doc.recomputeApplied()
	return doc.clone(), nil
}

// SetCase replaces the case information
func (s *Store) SetCase(info CaseInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
}

// Case returns the case information with totals derived from the documents
func (s *Store) Case() CaseInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := s.info
	info.TotalDocuments = len(s.docs)
	info.TotalRedactions = 0
	for _, doc := range s.docs {
		info.TotalRedactions += doc.RedactionsDetected
	}
	return info
}
