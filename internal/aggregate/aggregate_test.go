package aggregate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

var face = []facematch.Face{{Box: facematch.Box{Width: 0.3, Height: 0.3}, Confidence: 99}}

func seed(t *testing.T, store *storage.MemoryStore) []string {
	t.Helper()
	ctx := context.Background()
	parts := map[string][]facematch.Item{
		"jobs/1/iterators/0.json": {
			{Key: "crops/a.jpg", Faces: face, FaceID: "fa"},
			{Key: "crops/b.jpg", Faces: face, ErrorMessage: "too small"},
		},
		"jobs/1/iterators/1.json": {
			{Key: "crops/c.jpg"},
			{Key: "crops/a.jpg", Faces: face, FaceID: "fd"},
		},
	}
	for key, items := range parts {
		require.NoError(t, storage.PutJSON(ctx, store, "b", key, facematch.Checkpoint{Cursor: len(items), Items: items}))
	}
	for _, k := range []string{"crops/a.jpg", "crops/b.jpg", "crops/c.jpg"} {
		require.NoError(t, storage.Put(ctx, store, "b", k, []byte("jpeg")))
	}
	return []string{"jobs/1/iterators/0.json", "jobs/1/iterators/1.json"}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	outputs := seed(t, store)

	summary, err := New(store, zap.NewNop(), false).Aggregate(ctx, Request{Bucket: "b", Prefix: "jobs/1", Outputs: outputs})
	require.NoError(t, err)

	assert.Equal(t, "jobs/1/faces.json", summary.Output)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Unprocessed)
	require.Len(t, summary.FaceUndetected, 1)
	assert.Equal(t, "crops/c.jpg", summary.FaceUndetected[0].Key)
	require.Len(t, summary.FaceUnindexed, 1)
	assert.Equal(t, "too small", summary.FaceUnindexed[0].ErrorMessage)

	result, err := storage.DownloadJSON[facematch.Checkpoint](ctx, store, "b", "jobs/1/faces.json")
	require.NoError(t, err)
	require.Len(t, result.Items, 4)
	assert.Equal(t, "fa", result.Items[0].FaceID)
	assert.Equal(t, "fd", result.Items[3].FaceID)

	// partitions and crops are gone, only the canonical object remains
	assert.Equal(t, []string{"jobs/1/faces.json"}, store.Keys("b", ""))
}

func TestAggregate_InlineOutputIsKept(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	items := []facematch.Item{{Key: "crops/a.jpg", Faces: face, FaceID: "fa"}}
	require.NoError(t, storage.PutJSON(ctx, store, "b", "jobs/2/faces.json", facematch.Checkpoint{Cursor: 1, Items: items}))

	summary, err := New(store, nil, true).Aggregate(ctx, Request{Bucket: "b", Prefix: "jobs/2", Outputs: []string{"jobs/2/faces.json"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	ok, err := store.Exists(ctx, "b", "jobs/2/faces.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAggregate_CleanupIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	outputs := seed(t, store)

	core, logs := observer.New(zapcore.WarnLevel)
	agg := New(&failingCropDeletes{MemoryStore: store}, zap.New(core), false)

	summary, err := agg.Aggregate(ctx, Request{Bucket: "b", Prefix: "jobs/1", Outputs: outputs})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 3, logs.FilterMessage("failed to delete source crop").Len())
}

func TestAggregate_PartitionDeleteIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	outputs := seed(t, store)
	store.DeleteError = errors.New("transient delete failure")

	core, logs := observer.New(zapcore.WarnLevel)
	summary, err := New(store, zap.New(core), false).Aggregate(ctx, Request{Bucket: "b", Prefix: "jobs/1", Outputs: outputs})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, logs.FilterMessage("failed to delete partition object").Len())
	assert.Equal(t, 3, logs.FilterMessage("failed to delete source crop").Len())

	result, err := storage.DownloadJSON[facematch.Checkpoint](ctx, store, "b", "jobs/1/faces.json")
	require.NoError(t, err)
	assert.Len(t, result.Items, 4)
}

func TestAggregate_MissingPartition(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := New(store, nil, false).Aggregate(context.Background(), Request{Bucket: "b", Prefix: "p", Outputs: []string{"p/iterators/0.json"}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClassify_AllIndexed(t *testing.T) {
	s := Classify([]facematch.Item{{Faces: face, FaceID: "a"}})
	assert.Equal(t, 1, s.Processed)
	assert.Zero(t, s.Unprocessed)
	assert.Empty(t, s.FaceUnindexed)
	assert.NotNil(t, s.FaceUndetected)
}

// failingCropDeletes fails every delete of a source crop.
type failingCropDeletes struct {
	*storage.MemoryStore
}

func (f *failingCropDeletes) Delete(ctx context.Context, bucket, key string) error {
	if strings.HasPrefix(key, "crops/") {
		return errors.New("access denied")
	}
	return f.MemoryStore.Delete(ctx, bucket, key)
}
