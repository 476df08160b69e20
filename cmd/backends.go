package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/aggregate"
	"github.com/kozaktomas/face-indexer/internal/config"
	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/database/mock"
	"github.com/kozaktomas/face-indexer/internal/database/postgres"
	"github.com/kozaktomas/face-indexer/internal/indexer"
	"github.com/kozaktomas/face-indexer/internal/pipeline"
	"github.com/kozaktomas/face-indexer/internal/recognition"
	"github.com/kozaktomas/face-indexer/internal/reconcile"
	"github.com/kozaktomas/face-indexer/internal/search"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// backends holds the storage, registry, search and recognition clients of one command.
type backends struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      storage.ObjectStore
	registry   database.FaceRegistry
	index      search.Index
	recognizer *recognition.Client
	closers    []func() error
}

// openBackends connects every configured backend. Unset paths and URLs fall
// back to in-memory implementations, except for the recognition service.
func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{cfg: cfg, logger: logger}

	if cfg.Storage.Path != "" {
		store, err := storage.OpenPebble(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		b.store = store
		b.closers = append(b.closers, store.Close)
		logger.Debug("using pebble object store", zap.String("path", cfg.Storage.Path))
	} else {
		b.store = storage.NewMemoryStore()
		logger.Warn("STORAGE_PATH not set, objects are kept in memory")
	}

	registry, closeRegistry, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	if closeRegistry != nil {
		b.closers = append(b.closers, closeRegistry)
	}
	cached, err := database.NewCachedRegistry(registry, cfg.Database.CacheSize)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create registry cache: %w", err)
	}
	b.registry = cached

	if cfg.Search.Path != "" {
		index, err := search.OpenSQLite(cfg.Search.Path)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open search index: %w", err)
		}
		b.index = index
		b.closers = append(b.closers, index.Close)
	} else {
		b.index = search.NewMemoryIndex()
		logger.Warn("SEARCH_PATH not set, content documents are kept in memory")
	}

	if cfg.Recognition.URL != "" {
		client, err := recognition.NewClient(cfg.Recognition.URL,
			recognition.WithRateLimit(cfg.Recognition.RateLimit),
			recognition.WithLogger(logger.Named("recognition")))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("create recognition client: %w", err)
		}
		b.recognizer = client
	}
	return b, nil
}

func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.FaceRegistry, func() error, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory face registry")
		return mock.NewMockFaceRegistry(), nil, nil
	}
	pool, err := postgres.Open(ctx, &cfg.Database, logger.Named("postgres"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	logger.Debug("using PostgreSQL face registry")
	return pool.Faces(), pool.Close, nil
}

// Close releases the backends in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("close backend", zap.Error(err))
		}
	}
	b.closers = nil
}

func (b *backends) requireRecognizer() error {
	if b.recognizer == nil {
		return errors.New("RECOGNITION_URL environment variable is required")
	}
	return nil
}

func (b *backends) indexer() *indexer.Indexer {
	return indexer.New(b.store, b.recognizer, b.registry, b.cfg.Indexer, b.cfg.Recognition.Collection,
		indexer.WithLogger(b.logger.Named("indexer")))
}

func (b *backends) aggregator() *aggregate.Aggregator {
	return aggregate.New(b.store, b.logger.Named("aggregate"), b.cfg.Storage.KeepTempCrop)
}

func (b *backends) pipeline(opts ...pipeline.Option) *pipeline.Pipeline {
	opts = append([]pipeline.Option{pipeline.WithLogger(b.logger.Named("pipeline"))}, opts...)
	return pipeline.New(b.store, b.indexer(), b.aggregator(), b.cfg.Indexer, opts...)
}

func (b *backends) reconciler() *reconcile.Reconciler {
	return reconcile.New(b.store, b.cfg.Storage.ProxyBucket, b.registry, b.index, b.cfg.Search.Index,
		reconcile.WithLogger(b.logger.Named("reconcile")),
		reconcile.WithConcurrency(b.cfg.Reconcile.Concurrency),
		reconcile.WithCategory(b.cfg.Reconcile.Category))
}
