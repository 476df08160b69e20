package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAndSplitKey(t *testing.T) {
	tests := []struct {
		prefix, name, key string
	}{
		{"jobs/42", "faces.json", "jobs/42/faces.json"},
		{"/jobs/42/", "iterators/0.json", "jobs/42/iterators/0.json"},
		{"", "faces.json", "faces.json"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.key, Join(tt.prefix, tt.name))
		})
	}

	prefix, name := SplitKey("jobs/42/iterators/0.json")
	assert.Equal(t, "jobs/42/iterators", prefix)
	assert.Equal(t, "0.json", name)

	prefix, name = SplitKey("faces.json")
	assert.Empty(t, prefix)
	assert.Equal(t, "faces.json", name)
}

func testStore(t *testing.T, s ObjectStore) {
	ctx := context.Background()

	_, err := s.Download(ctx, "b", "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	key, err := s.Upload(ctx, "b", "jobs/1", "a.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "jobs/1/a.json", key)

	data, err := s.Download(ctx, "b", key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	// buckets are isolated
	_, err = s.Download(ctx, "other", key)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "b", key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "b", key))
	ok, err = s.Exists(ctx, "b", key)
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting twice is fine
	require.NoError(t, s.Delete(ctx, "b", key))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestPebbleStore(t *testing.T) {
	s, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, name := range []string{"1.json", "0.json"} {
		_, err := s.Upload(ctx, "b", "jobs/1/iterators", name, []byte("[]"))
		require.NoError(t, err)
	}
	_, err := s.Upload(ctx, "b", "jobs/1", "faces.json", []byte("[]"))
	require.NoError(t, err)

	assert.Equal(t, []string{"jobs/1/iterators/0.json", "jobs/1/iterators/1.json"}, s.Keys("b", "jobs/1/iterators/"))
}

func TestMemoryStoreErrorInjection(t *testing.T) {
	s := NewMemoryStore()
	s.UploadError = errors.New("boom")
	_, err := s.Upload(context.Background(), "b", "p", "n", nil)
	assert.EqualError(t, err, "boom")
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type doc struct {
		Cursor int `json:"cursor"`
	}
	require.NoError(t, PutJSON(ctx, s, "b", "jobs/1/state.json", doc{Cursor: 7}))

	got, err := DownloadJSON[doc](ctx, s, "b", "jobs/1/state.json")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Cursor)

	require.NoError(t, Put(ctx, s, "b", "jobs/1/bad.json", []byte("{")))
	_, err = DownloadJSON[doc](ctx, s, "b", "jobs/1/bad.json")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
