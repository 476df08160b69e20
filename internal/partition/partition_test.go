package partition

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

func makeItems(n int) []facematch.Item {
	items := make([]facematch.Item, n)
	for i := range items {
		items[i] = facematch.Item{
			Key:   fmt.Sprintf("crops/%d.jpg", i),
			Faces: []facematch.Face{{Box: facematch.Box{Width: 0.5, Height: 0.5}, Confidence: 99}},
		}
	}
	return items
}

func TestItemsPerIterator(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0},
		{1, 21},
		{5, 21},
		{21, 21},
		{100, 21},
		{106, 42},
		{500, 105},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			got := ItemsPerIterator(tt.n, constants.MaxConcurrency, constants.MaxFacesPerIndex)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, got%constants.MaxFacesPerIndex)
		})
	}
}

func TestPartition_Chunks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	filter := facematch.Filter{MinConfidence: 80}

	its, err := Partition(ctx, store, Request{Bucket: "b", Prefix: "jobs/1", Items: makeItems(100), Filter: filter})
	require.NoError(t, err)
	require.Len(t, its, 5)

	total := 0
	for i, it := range its {
		assert.Equal(t, "index-faces", it.Operation)
		assert.Equal(t, fmt.Sprintf("jobs/1/iterators/%d.json", i), it.Output)
		assert.Equal(t, filter, it.Filter)
		assert.Empty(t, it.Items)

		cp, err := storage.DownloadJSON[facematch.Checkpoint](ctx, store, "b", it.Output)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(cp.Items), 21)
		total += len(cp.Items)
	}
	assert.Equal(t, 100, total)
}

func TestPartition_SingleInline(t *testing.T) {
	for _, n := range []int{5, 21} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			store := storage.NewMemoryStore()
			its, err := Partition(context.Background(), store, Request{Bucket: "b", Prefix: "jobs/1", Items: makeItems(n)})
			require.NoError(t, err)
			require.Len(t, its, 1)
			assert.Equal(t, "jobs/1/faces.json", its[0].Output)
			assert.Len(t, its[0].Items, n)
			assert.Empty(t, store.Keys("b", ""))
		})
	}
}

func TestPartition_Empty(t *testing.T) {
	store := storage.NewMemoryStore()
	its, err := Partition(context.Background(), store, Request{Bucket: "b", Prefix: "jobs/1"})
	require.NoError(t, err)
	assert.Empty(t, its)
	assert.Empty(t, store.Keys("b", ""))
}

func TestPartition_UploadFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	store.UploadError = fmt.Errorf("disk full")
	_, err := Partition(context.Background(), store, Request{Bucket: "b", Prefix: "p", Items: makeItems(50)})
	assert.ErrorContains(t, err, "disk full")
}

func TestLoadDetections(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, storage.Put(ctx, store, "b", "in/array.json",
		[]byte(`[{"key":"a.jpg","faces":[{"box":{"l":0.1,"t":0.1,"w":0.2,"h":0.2}}]}]`)))
	require.NoError(t, storage.Put(ctx, store, "b", "in/object.json",
		[]byte(`{"items":[{"key":"a.jpg"},{"key":"b.jpg"}]}`)))

	items, err := LoadDetections(ctx, store, "b", "in/array.json")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 0.2, items[0].Faces[0].Box.Width, 0.0001)

	items, err = LoadDetections(ctx, store, "b", "in/object.json")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = LoadDetections(ctx, store, "b", "in/missing.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
