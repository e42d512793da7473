package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/snapgloss/snapgloss/internal/document"
)

// MockStore implements Store in memory for tests. Documents are cloned on
// the way in and out, matching the real store's snapshot semantics.
type MockStore struct {
	// Configurable failures
	SaveErr   error
	UpdateErr error
	FetchErr  error
	PageErr   error

	mu   sync.Mutex
	docs map[string]*document.Document

	saveCalls   atomic.Int64
	asyncCalls  atomic.Int64
	updateCalls atomic.Int64
	fetchCalls  atomic.Int64
	pageCalls   atomic.Int64
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{docs: map[string]*document.Document{}}
}

// Save stores a clone of doc, replacing any existing record.
func (m *MockStore) Save(ctx context.Context, doc *document.Document) error {
	m.saveCalls.Add(1)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.put(doc)
	return nil
}

// SaveAsync stores a clone of doc. Errors are swallowed, like the sink.
func (m *MockStore) SaveAsync(doc *document.Document) {
	m.asyncCalls.Add(1)
	m.put(doc)
}

// Update replaces the record for doc.ID, or returns ErrNotFound.
func (m *MockStore) Update(ctx context.Context, doc *document.Document) error {
	m.updateCalls.Add(1)
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
	}
	m.docs[doc.ID] = doc.Clone()
	return nil
}

// Fetch returns a clone of the stored document, or ErrNotFound.
func (m *MockStore) Fetch(ctx context.Context, id string) (*document.Document, error) {
	m.fetchCalls.Add(1)
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc.Clone(), nil
}

// FetchPage returns metadata ordered newest first, ties broken by id.
func (m *MockStore) FetchPage(ctx context.Context, offset, limit int) ([]document.Metadata, error) {
	m.pageCalls.Add(1)
	if m.PageErr != nil {
		return nil, m.PageErr
	}
	m.mu.Lock()
	metas := make([]document.Metadata, 0, len(m.docs))
	for _, doc := range m.docs {
		metas = append(metas, doc.Meta())
	}
	m.mu.Unlock()

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})

	if offset >= len(metas) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(metas) {
		end = len(metas)
	}
	return metas[offset:end], nil
}

// Count returns the number of stored documents.
func (m *MockStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs), nil
}

// SetFlags updates flags on the stored document, or returns ErrNotFound.
func (m *MockStore) SetFlags(ctx context.Context, id string, saved, pinned *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if saved != nil {
		doc.Saved = *saved
	}
	if pinned != nil {
		doc.Pinned = *pinned
	}
	return nil
}

// Delete removes the stored document, or returns ErrNotFound.
func (m *MockStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.docs, id)
	return nil
}

// Seed stores a clone of doc without counting as a Save call.
func (m *MockStore) Seed(doc *document.Document) {
	m.put(doc)
}

// SaveCalls returns the number of Save invocations.
func (m *MockStore) SaveCalls() int64 { return m.saveCalls.Load() }

// AsyncSaveCalls returns the number of SaveAsync invocations.
func (m *MockStore) AsyncSaveCalls() int64 { return m.asyncCalls.Load() }

// UpdateCalls returns the number of Update invocations.
func (m *MockStore) UpdateCalls() int64 { return m.updateCalls.Load() }

// FetchCalls returns the number of Fetch invocations.
func (m *MockStore) FetchCalls() int64 { return m.fetchCalls.Load() }

// PageCalls returns the number of FetchPage invocations.
func (m *MockStore) PageCalls() int64 { return m.pageCalls.Load() }

func (m *MockStore) put(doc *document.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = map[string]*document.Document{}
	}
	m.docs[doc.ID] = doc.Clone()
}
