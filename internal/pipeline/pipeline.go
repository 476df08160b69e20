// Package pipeline runs a complete indexing job: partition the detection
// list, drive every partition's indexer to completion in parallel, then
// aggregate the partition outputs.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-indexer/internal/aggregate"
	"github.com/kozaktomas/face-indexer/internal/config"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/indexer"
	"github.com/kozaktomas/face-indexer/internal/logging"
	"github.com/kozaktomas/face-indexer/internal/partition"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// Request is one indexing job.
type Request struct {
	Bucket string           `json:"bucket"`
	Prefix string           `json:"prefix"`
	Items  []facematch.Item `json:"items"`
	UserID string           `json:"userId,omitempty"`
}

// Progress is reported after every indexer invocation.
type Progress struct {
	Partition int
	Output    string
	Status    indexer.Status
	Progress  int
	Retries   int
}

// Runner is the indexer invocation the pipeline drives.
type Runner interface {
	Run(ctx context.Context, inv indexer.Invocation) (*indexer.Envelope, error)
}

// Pipeline wires the partitioner, the indexer and the aggregator.
type Pipeline struct {
	store      storage.ObjectStore
	runner     Runner
	aggregator *aggregate.Aggregator
	cfg        config.IndexerConfig
	logger     *zap.Logger
	onProgress func(Progress)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithProgress registers a callback. It is called from several goroutines.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

func New(store storage.ObjectStore, runner Runner, aggregator *aggregate.Aggregator, cfg config.IndexerConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		runner:     runner,
		aggregator: aggregator,
		cfg:        cfg,
		logger:     zap.NewNop(),
		onProgress: func(Progress) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Filter returns the detection filter configured for every partition.
func (p *Pipeline) Filter() facematch.Filter {
	return facematch.Filter(p.cfg.Filter)
}

// Run executes the job and returns the aggregated summary.
func (p *Pipeline) Run(ctx context.Context, req Request) (*aggregate.Summary, error) {
	return p.RunWithProgress(ctx, req, p.onProgress)
}

// RunWithProgress is Run with a per-call progress callback instead of the
// configured one.
func (p *Pipeline) RunWithProgress(ctx context.Context, req Request, onProgress func(Progress)) (*aggregate.Summary, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	filter := p.Filter()
	iterators, err := partition.Partition(ctx, p.store, partition.Request{
		Bucket:           req.Bucket,
		Prefix:           req.Prefix,
		Items:            req.Items,
		Filter:           filter,
		MaxConcurrency:   p.cfg.MaxConcurrency,
		MaxFacesPerIndex: p.cfg.MaxFacesPerIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	p.logger.Info("job partitioned",
		zap.String(logging.FieldBucket, req.Bucket),
		zap.String("prefix", req.Prefix),
		zap.Int("items", len(req.Items)),
		zap.Int("partitions", len(iterators)))

	g, gctx := errgroup.WithContext(ctx)
	outputs := make([]string, len(iterators))
	for i, it := range iterators {
		outputs[i] = it.Output
		g.Go(func() error {
			return p.drive(gctx, i, it, req.UserID, onProgress)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // wrapped in drive
	}

	if len(outputs) == 0 {
		// nothing was partitioned, aggregate an empty canonical object
		key := partition.ResultsKey(req.Prefix)
		if err := storage.PutJSON(ctx, p.store, req.Bucket, key, facematch.Checkpoint{Items: []facematch.Item{}}); err != nil {
			return nil, fmt.Errorf("write empty results: %w", err)
		}
		outputs = []string{key}
	}

	summary, err := p.aggregator.Aggregate(ctx, aggregate.Request{
		Bucket:  req.Bucket,
		Prefix:  req.Prefix,
		Outputs: outputs,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return summary, nil
}

// drive re-invokes the indexer for one partition until it reports COMPLETED.
func (p *Pipeline) drive(ctx context.Context, n int, it partition.Iterator, userID string, onProgress func(Progress)) error {
	inv := indexer.Invocation{
		Bucket: it.Bucket,
		Prefix: it.Prefix,
		Output: it.Output,
		Items:  it.Items,
		Filter: it.Filter,
		UserID: userID,
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := p.runner.Run(ctx, inv)
		if err != nil {
			return fmt.Errorf("partition %d (%s): %w", n, it.Output, err)
		}
		onProgress(Progress{
			Partition: n,
			Output:    env.Output,
			Status:    env.IndexStatus,
			Progress:  env.Progress,
			Retries:   env.Retries,
		})
		if env.IndexStatus == indexer.StatusCompleted {
			return nil
		}
		inv = env.Next(it.Filter, userID)
	}
}
