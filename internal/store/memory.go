package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Memory is an in-process Store used by tests and single-node dev runs.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]json.RawMessage
	versions map[string]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]json.RawMessage),
		versions: make(map[string]int64),
	}
}

// Get unmarshals the document at path into out.
func (m *Memory) Get(ctx context.Context, path string, out interface{}) error {
	m.mu.RLock()
	raw, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

// Put writes the document at path, overwriting any existing version.
func (m *Memory) Put(ctx context.Context, path string, doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[path] = raw
	m.versions[path]++
	m.mu.Unlock()
	return nil
}

// Update applies mutate under the store lock. The in-memory backend is
// trivially serialized, so the optimistic-retry loop of the remote
// backends collapses to a single attempt.
func (m *Memory) Update(ctx context.Context, path string, mutate func(raw json.RawMessage) (interface{}, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := m.docs[path] // nil when absent, mutate decides how to seed
	next, err := mutate(raw)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return err
	}
	m.docs[path] = encoded
	m.versions[path]++
	return nil
}

// Delete removes the document at path. Deleting a missing path is a no-op.
func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	delete(m.docs, path)
	delete(m.versions, path)
	m.mu.Unlock()
	return nil
}

// QueryDocs filters and orders documents under the collection prefix.
func (m *Memory) QueryDocs(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	prefix := collection + "/"

	m.mu.RLock()
	var raws []json.RawMessage
	var decoded []map[string]interface{}
	for path, raw := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		// Only direct children; nested collections are separate paths.
		if strings.Contains(path[len(prefix):], "/") {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			m.mu.RUnlock()
			return nil, domain.E(domain.KindValidation, "store_corrupt_document", "undecodable document at "+path, err)
		}
		if !matchFilters(doc, q.Filters) {
			continue
		}
		raws = append(raws, raw)
		decoded = append(decoded, doc)
	}
	m.mu.RUnlock()

	sortDocs(decoded, raws, q)
	if q.Limit > 0 && len(raws) > q.Limit {
		raws = raws[:q.Limit]
	}
	return raws, nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }
