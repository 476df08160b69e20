package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryIndex is an in-process Index.
type MemoryIndex struct {
	mu   sync.Mutex // serializes read-modify-write in Update
	docs *xsync.MapOf[string, []byte]
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: xsync.NewMapOf[string, []byte]()}
}

func docKey(index, contentID string) string {
	return index + "\x00" + contentID
}

func (m *MemoryIndex) Update(ctx context.Context, index, contentID string, partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, _ := m.docs.Load(docKey(index, contentID))
	merged, err := MergeDocument(current, partial)
	if err != nil {
		return err
	}
	m.docs.Store(docKey(index, contentID), merged)
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]string, error) {
	ids := []string{}
	if len(q.Values) == 0 {
		return ids, nil
	}
	prefix := q.Index + "\x00"
	m.docs.Range(func(k string, doc []byte) bool {
		contentID, ok := strings.CutPrefix(k, prefix)
		if ok && matches(Terms(doc), q) {
			ids = append(ids, contentID)
		}
		return true
	})
	sort.Strings(ids)
	return excludeIDs(ids, q.Exclude), nil
}

func (m *MemoryIndex) Get(ctx context.Context, index, contentID string) ([]byte, error) {
	doc, ok := m.docs.Load(docKey(index, contentID))
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}
