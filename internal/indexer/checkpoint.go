package indexer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// loadCheckpoint returns the partition state. A first invocation carrying
// inline items starts from those items, since its output may hold the results
// of an earlier run on the same prefix. Otherwise the state is read from the
// output object, falling back to the inline items when none was stored.
func (ix *Indexer) loadCheckpoint(ctx context.Context, inv Invocation) (*facematch.Checkpoint, error) {
	if inv.Retries == 0 && len(inv.Items) > 0 {
		return &facematch.Checkpoint{Items: slices.Clone(inv.Items)}, nil
	}
	cp, err := storage.DownloadJSON[facematch.Checkpoint](ctx, ix.store, inv.Bucket, inv.Output)
	if err == nil {
		cp.Cursor = min(max(cp.Cursor, 0), len(cp.Items))
		return cp, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load checkpoint %s: %w", inv.Output, err)
	}
	return &facematch.Checkpoint{
		Retries: inv.Retries,
		Items:   slices.Clone(inv.Items),
	}, nil
}

func (ix *Indexer) persist(ctx context.Context, inv Invocation, cp *facematch.Checkpoint) error {
	if err := storage.PutJSON(ctx, ix.store, inv.Bucket, inv.Output, cp); err != nil {
		return fmt.Errorf("persist checkpoint %s: %w", inv.Output, err)
	}
	return nil
}

// applyFilter marks pending items whose faces all fail the filter.
func applyFilter(cp *facematch.Checkpoint, filter facematch.Filter) {
	for i := range cp.Items {
		item := &cp.Items[i]
		if item.IsTerminal() {
			continue
		}
		if _, ok := item.LargestFace(filter); !ok {
			item.ErrorMessage = MsgFilterRejected
		}
	}
}

// advanceCursor moves the cursor past terminal items.
func advanceCursor(cp *facematch.Checkpoint) {
	for cp.Cursor < len(cp.Items) && cp.Items[cp.Cursor].IsTerminal() {
		cp.Cursor++
	}
}

// nextBatch returns the indices of the next pending items sharing one collection.
func (ix *Indexer) nextBatch(cp *facematch.Checkpoint) []int {
	size := ix.batchSize()
	var (
		batch      []int
		collection string
	)
	for i := cp.Cursor; i < len(cp.Items) && len(batch) < size; i++ {
		item := &cp.Items[i]
		if item.IsTerminal() {
			continue
		}
		c := ix.collectionOf(item)
		if len(batch) == 0 {
			collection = c
		} else if c != collection {
			continue
		}
		batch = append(batch, i)
	}
	return batch
}

func (ix *Indexer) collectionOf(item *facematch.Item) string {
	if item.CollectionID != "" {
		return item.CollectionID
	}
	return ix.collection
}
