// Package aggregate merges the partition checkpoints of an indexing run into
// the canonical results object and cleans up temporary objects.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/logging"
	"github.com/kozaktomas/face-indexer/internal/metrics"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// Request names the partition outputs of one run.
type Request struct {
	Bucket  string   `json:"bucket"`
	Prefix  string   `json:"prefix"`
	Outputs []string `json:"outputs"`
}

// Summary classifies every item of the run.
type Summary struct {
	Output         string           `json:"output"`
	Total          int              `json:"total"`
	Processed      int              `json:"processed"`
	Unprocessed    int              `json:"unprocessed"`
	FaceUndetected []facematch.Item `json:"faceUndetected"`
	FaceUnindexed  []facematch.Item `json:"faceUnindexed"`
}

// Aggregator builds run summaries.
type Aggregator struct {
	store     storage.ObjectStore
	logger    *zap.Logger
	keepCrops bool
}

// New creates an aggregator. With keepCrops the temporary source crops are not deleted.
func New(store storage.ObjectStore, logger *zap.Logger, keepCrops bool) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger, keepCrops: keepCrops}
}

// Aggregate concatenates the partition items in output order, writes the
// canonical results object and removes the partition objects and source
// crops. Removal failures are logged and counted, never returned.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*Summary, error) {
	if req.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	canonical := storage.Join(req.Prefix, constants.ResultsObjectName)
	outputs := req.Outputs
	if len(outputs) == 0 {
		outputs = []string{canonical}
	}

	parts := make([]*facematch.Checkpoint, len(outputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range outputs {
		g.Go(func() error {
			cp, err := storage.DownloadJSON[facematch.Checkpoint](gctx, a.store, req.Bucket, key)
			if err != nil {
				return fmt.Errorf("load partition %s: %w", key, err)
			}
			parts[i] = cp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // wrapped in the goroutine
	}

	var items []facematch.Item
	for _, cp := range parts {
		items = append(items, cp.Items...)
	}
	if items == nil {
		items = []facematch.Item{}
	}

	result := facematch.Checkpoint{Cursor: len(items), Items: items}
	if err := storage.PutJSON(ctx, a.store, req.Bucket, canonical, result); err != nil {
		return nil, fmt.Errorf("write results: %w", err)
	}

	for _, key := range outputs {
		if key == canonical {
			continue
		}
		if err := a.store.Delete(ctx, req.Bucket, key); err != nil {
			metrics.CleanupFailures.Inc()
			a.logger.Warn("failed to delete partition object",
				zap.String(logging.FieldBucket, req.Bucket),
				zap.String("key", key),
				zap.Error(err))
		}
	}

	if !a.keepCrops {
		a.cleanupCrops(ctx, req.Bucket, items)
	}

	summary := Classify(items)
	summary.Output = canonical
	a.logger.Info("run aggregated",
		zap.String(logging.FieldBucket, req.Bucket),
		zap.String(logging.FieldOutput, canonical),
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("unprocessed", summary.Unprocessed))
	return summary, nil
}

// cleanupCrops deletes every distinct source crop. Failures are logged only.
func (a *Aggregator) cleanupCrops(ctx context.Context, bucket string, items []facematch.Item) {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.Key == "" || seen[item.Key] {
			continue
		}
		seen[item.Key] = true
		if err := a.store.Delete(ctx, bucket, item.Key); err != nil {
			metrics.CleanupFailures.Inc()
			a.logger.Warn("failed to delete source crop",
				zap.String(logging.FieldBucket, bucket),
				zap.String("key", item.Key),
				zap.Error(err))
		}
	}
}

// Classify counts indexed items and collects the others by state.
func Classify(items []facematch.Item) *Summary {
	s := &Summary{
		Total:          len(items),
		FaceUndetected: []facematch.Item{},
		FaceUnindexed:  []facematch.Item{},
	}
	for _, item := range items {
		switch item.State() {
		case facematch.ItemIndexed:
			s.Processed++
		case facematch.ItemUndetected:
			s.FaceUndetected = append(s.FaceUndetected, item)
		default:
			s.FaceUnindexed = append(s.FaceUnindexed, item)
		}
	}
	s.Unprocessed = s.Total - s.Processed
	return s
}
