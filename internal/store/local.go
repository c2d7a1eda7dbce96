package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Local persists documents as JSON files under a data directory, one file
// per document, mirroring the path hierarchy. Suitable for single-node
// deployments and local development with durable state.
type Local struct {
	root string
	mu   sync.RWMutex
}

// NewLocal creates the data directory if needed and returns a file-backed
// store rooted there.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.E(domain.KindConfig, "store_local_init", "creating storage directory", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) filePath(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path)+".json")
}

// Get unmarshals the document at path into out.
func (l *Local) Get(ctx context.Context, path string, out interface{}) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	raw, err := os.ReadFile(l.filePath(path))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Put writes the document at path atomically (temp file + rename).
func (l *Local) Put(ctx context.Context, path string, doc interface{}) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeLocked(path, raw)
}

func (l *Local) writeLocked(path string, raw []byte) error {
	fp := l.filePath(path)
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return err
	}
	tmp := fp + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, fp)
}

// Update applies mutate under the store lock.
func (l *Local) Update(ctx context.Context, path string, mutate func(raw json.RawMessage) (interface{}, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var raw json.RawMessage
	data, err := os.ReadFile(l.filePath(path))
	if err == nil {
		raw = data
	} else if !os.IsNotExist(err) {
		return err
	}

	next, err := mutate(raw)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	return l.writeLocked(path, encoded)
}

// Delete removes the document file. Missing files are a no-op.
func (l *Local) Delete(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := os.Remove(l.filePath(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// QueryDocs reads every document in the collection directory and filters
// client-side.
func (l *Local) QueryDocs(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	dir := filepath.Join(l.root, filepath.FromSlash(collection))

	l.mu.RLock()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		l.mu.RUnlock()
		return nil, nil
	}
	if err != nil {
		l.mu.RUnlock()
		return nil, err
	}

	var raws []json.RawMessage
	var decoded []map[string]interface{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if !matchFilters(doc, q.Filters) {
			continue
		}
		raws = append(raws, raw)
		decoded = append(decoded, doc)
	}
	l.mu.RUnlock()

	sortDocs(decoded, raws, q)
	if q.Limit > 0 && len(raws) > q.Limit {
		raws = raws[:q.Limit]
	}
	return raws, nil
}

// Close is a no-op for the file backend.
func (l *Local) Close() error { return nil }
