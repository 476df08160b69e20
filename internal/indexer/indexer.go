// Package indexer adds detected faces to a recognition collection by packing
// up to one composite grid of face crops into each IndexFaces call.
//
// An invocation processes micro-batches until no pending item is left or the
// time budget runs out. State is checkpointed to the invocation output after
// every micro-batch so a re-invocation resumes where the previous one stopped.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/config"
	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/logging"
	"github.com/kozaktomas/face-indexer/internal/metrics"
	"github.com/kozaktomas/face-indexer/internal/recognition"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

var (
	// ErrLayoutCorruption means an indexed face could not be mapped back to a cell.
	ErrLayoutCorruption = errors.New("composite layout corruption")
	// ErrRetryCeiling means the partition was re-invoked too many times.
	ErrRetryCeiling = errors.New("retry ceiling exceeded")
)

// Item error messages set by the indexer itself.
const (
	MsgFilterRejected = "no face passed detection filter"
	MsgNotIndexed     = "face not indexed"
	MsgSourceMissing  = "source image not found"
	MsgSourceInvalid  = "source image could not be decoded"
)

// Status is the state reported back to the caller.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
)

// Invocation is one indexer run over a partition.
type Invocation struct {
	Bucket  string           `json:"bucket"`
	Prefix  string           `json:"prefix"`
	Output  string           `json:"output"`
	Retries int              `json:"retries,omitempty"`
	Items   []facematch.Item `json:"items,omitempty"`
	Filter  facematch.Filter `json:"filter"`
	UserID  string           `json:"userId,omitempty"`
}

// Envelope is returned after each invocation. A PROCESSING envelope is fed
// back as the next invocation.
type Envelope struct {
	IndexStatus Status `json:"indexStatus"`
	Progress    int    `json:"progress"`
	Retries     int    `json:"retries"`
	Bucket      string `json:"bucket"`
	Prefix      string `json:"prefix"`
	Output      string `json:"output"`
}

// Next builds the follow-up invocation of a PROCESSING envelope.
func (e *Envelope) Next(filter facematch.Filter, userID string) Invocation {
	return Invocation{
		Bucket:  e.Bucket,
		Prefix:  e.Prefix,
		Output:  e.Output,
		Retries: e.Retries,
		Filter:  filter,
		UserID:  userID,
	}
}

// Recognizer is the face collection service used by the indexer.
type Recognizer interface {
	IndexFaces(ctx context.Context, collectionID, externalImageID string, image []byte, maxFaces int) (*recognition.IndexFacesOutput, error)
}

// Indexer runs composite batch indexing invocations.
type Indexer struct {
	store      storage.ObjectStore
	recognizer Recognizer
	registry   database.FaceRegistry
	cfg        config.IndexerConfig
	collection string
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = logger }
}

// WithClock replaces time.Now for budget accounting.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) { ix.now = now }
}

// New creates an indexer. collection is used for items without a collection id.
func New(store storage.ObjectStore, recognizer Recognizer, registry database.FaceRegistry, cfg config.IndexerConfig, collection string, opts ...Option) *Indexer {
	ix := &Indexer{
		store:      store,
		recognizer: recognizer,
		registry:   registry,
		cfg:        cfg,
		collection: collection,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Indexer) grid() facematch.Grid {
	return facematch.Grid{
		Columns:    ix.cfg.GridColumns,
		Rows:       ix.cfg.GridRows,
		CellWidth:  ix.cfg.CellWidth,
		CellHeight: ix.cfg.CellHeight,
	}
}

func (ix *Indexer) batchSize() int {
	return min(ix.cfg.MaxFacesPerIndex, ix.grid().Capacity())
}

// Run executes one invocation.
func (ix *Indexer) Run(ctx context.Context, inv Invocation) (*Envelope, error) {
	if inv.Retries > ix.cfg.MaxRetries {
		metrics.Invocations.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %s re-invoked %d times", ErrRetryCeiling, inv.Output, inv.Retries)
	}
	if inv.Bucket == "" || inv.Output == "" {
		return nil, errors.New("bucket and output are required")
	}

	start := ix.now()
	logger := ix.logger.With(
		zap.String(logging.FieldBucket, inv.Bucket),
		zap.String(logging.FieldOutput, inv.Output),
		zap.Int(logging.FieldRetries, inv.Retries),
	)

	cp, err := ix.loadCheckpoint(ctx, inv)
	if err != nil {
		return nil, err
	}
	applyFilter(cp, inv.Filter)
	advanceCursor(cp)

	var slowest time.Duration
	for batchNo := 0; ; batchNo++ {
		batch := ix.nextBatch(cp)
		if len(batch) == 0 {
			break
		}

		reserve := max(slowest, ix.cfg.MinReserve)
		if ix.now().Sub(start)+reserve > ix.cfg.Budget {
			cp.Retries = inv.Retries + 1
			if err := ix.persist(ctx, inv, cp); err != nil {
				return nil, err
			}
			progress := cp.Progress()
			logger.Info("time budget exhausted, checkpointed",
				zap.Int("progress", progress),
				zap.Duration("slowest_batch", slowest))
			metrics.Invocations.WithLabelValues("processing").Inc()
			return &Envelope{
				IndexStatus: StatusProcessing,
				Progress:    progress,
				Retries:     cp.Retries,
				Bucket:      inv.Bucket,
				Prefix:      inv.Prefix,
				Output:      inv.Output,
			}, nil
		}

		batchStart := ix.now()
		if err := ix.processBatch(ctx, inv, cp, batch, logger.With(zap.Int(logging.FieldBatch, batchNo))); err != nil {
			metrics.Invocations.WithLabelValues("failed").Inc()
			return nil, err
		}
		elapsed := ix.now().Sub(batchStart)
		slowest = max(slowest, elapsed)
		metrics.BatchDuration.Observe(elapsed.Seconds())

		advanceCursor(cp)
		if err := ix.persist(ctx, inv, cp); err != nil {
			return nil, err
		}
	}

	cp.Retries = inv.Retries
	if err := ix.persist(ctx, inv, cp); err != nil {
		return nil, err
	}
	logger.Info("partition completed", zap.Int("items", len(cp.Items)))
	metrics.Invocations.WithLabelValues("completed").Inc()
	return &Envelope{
		IndexStatus: StatusCompleted,
		Progress:    100,
		Retries:     inv.Retries,
		Bucket:      inv.Bucket,
		Prefix:      inv.Prefix,
		Output:      inv.Output,
	}, nil
}
