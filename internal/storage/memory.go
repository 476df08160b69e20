package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore is an in-process ObjectStore. It backs tests and runs without
// a configured storage path.
type MemoryStore struct {
	objects *xsync.MapOf[string, []byte]

	// Error injection
	DownloadError error
	UploadError   error
	DeleteError   error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: xsync.NewMapOf[string, []byte]()}
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}

// Download returns a copy of the stored object.
func (m *MemoryStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	if m.DownloadError != nil {
		return nil, m.DownloadError
	}
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	data, ok := m.objects.Load(memoryKey(bucket, key))
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Upload stores a copy of data under prefix/name.
func (m *MemoryStore) Upload(ctx context.Context, bucket, prefix, name string, data []byte) (string, error) {
	if m.UploadError != nil {
		return "", m.UploadError
	}
	key := Join(prefix, name)
	if err := validate(bucket, key); err != nil {
		return "", err
	}
	m.objects.Store(memoryKey(bucket, key), append([]byte(nil), data...))
	return key, nil
}

// Delete removes an object.
func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.objects.Delete(memoryKey(bucket, key))
	return nil
}

// Exists checks whether an object exists.
func (m *MemoryStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, ok := m.objects.Load(memoryKey(bucket, key))
	return ok, nil
}

// Keys returns the sorted keys in a bucket that start with prefix.
func (m *MemoryStore) Keys(bucket, prefix string) []string {
	var keys []string
	bucketPrefix := bucket + "/"
	m.objects.Range(func(k string, _ []byte) bool {
		if rest, ok := strings.CutPrefix(k, bucketPrefix); ok && strings.HasPrefix(rest, prefix) {
			keys = append(keys, rest)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}
