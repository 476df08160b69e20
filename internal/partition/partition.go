// Package partition splits a detection list into work descriptors for the
// parallel composite indexers.
package partition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// Iterator is the work descriptor of one indexer partition.
type Iterator struct {
	Operation string           `json:"operation"`
	Bucket    string           `json:"bucket"`
	Prefix    string           `json:"prefix"`
	Output    string           `json:"output"`
	Filter    facematch.Filter `json:"filter"`
	Items     []facematch.Item `json:"items,omitempty"` // set only for a single inline partition
}

// Request describes a detection list to split.
type Request struct {
	Bucket string
	Prefix string
	Items  []facematch.Item
	Filter facematch.Filter

	MaxConcurrency   int // defaults to constants.MaxConcurrency
	MaxFacesPerIndex int // defaults to constants.MaxFacesPerIndex
}

// ItemsPerIterator returns the partition size for n items: the even share per
// worker rounded up to a whole number of composites.
func ItemsPerIterator(n, maxConcurrency, maxFacesPerIndex int) int {
	if n <= 0 {
		return 0
	}
	share := ceilDiv(n, maxConcurrency)
	return ceilDiv(share, maxFacesPerIndex) * maxFacesPerIndex
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ResultsKey is the canonical results object of a prefix.
func ResultsKey(prefix string) string {
	return storage.Join(prefix, constants.ResultsObjectName)
}

// IteratorKey is the object holding partition i of a prefix.
func IteratorKey(prefix string, i int) string {
	return storage.Join(prefix, constants.IteratorsDir+"/"+strconv.Itoa(i)+".json")
}

// Partition splits the request items into iterators. A single partition is
// returned inline with the canonical results key as output; otherwise every
// chunk is uploaded as a checkpoint and referenced by key.
func Partition(ctx context.Context, store storage.ObjectStore, req Request) ([]Iterator, error) {
	if req.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	maxConcurrency := req.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = constants.MaxConcurrency
	}
	batch := req.MaxFacesPerIndex
	if batch <= 0 {
		batch = constants.MaxFacesPerIndex
	}

	n := len(req.Items)
	if n == 0 {
		return []Iterator{}, nil
	}
	size := ItemsPerIterator(n, maxConcurrency, batch)

	base := Iterator{
		Operation: constants.OperationIndexFaces,
		Bucket:    req.Bucket,
		Prefix:    req.Prefix,
		Filter:    req.Filter,
	}

	if size >= n {
		it := base
		it.Output = ResultsKey(req.Prefix)
		it.Items = req.Items
		return []Iterator{it}, nil
	}

	iterators := make([]Iterator, 0, ceilDiv(n, size))
	for i, start := 0, 0; start < n; i, start = i+1, start+size {
		end := min(start+size, n)
		key := IteratorKey(req.Prefix, i)
		cp := facematch.Checkpoint{Items: req.Items[start:end]}
		if err := storage.PutJSON(ctx, store, req.Bucket, key, cp); err != nil {
			return nil, fmt.Errorf("upload partition %d: %w", i, err)
		}
		it := base
		it.Output = key
		iterators = append(iterators, it)
	}
	return iterators, nil
}

// LoadDetections reads a detection list object. Both a bare item array and an
// object with an "items" array are accepted.
func LoadDetections(ctx context.Context, store storage.ObjectStore, bucket, key string) ([]facematch.Item, error) {
	data, err := store.Download(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download detections %s: %w", key, err)
	}
	raw := data
	if parsed := gjson.ParseBytes(data); parsed.IsObject() {
		raw = []byte(parsed.Get("items").Raw)
	}
	var items []facematch.Item
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse detections %s: %w", key, err)
	}
	return items, nil
}
