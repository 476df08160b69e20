// Package reconcile applies operator identity corrections (renames and
// deletions of indexed faces) to every derived artifact that references a
// face, then to the face registry.
//
// Content items are discovered through the search index. Each item's
// artifacts are rewritten concurrently and a failure in one artifact never
// stops the others. Rewrites are idempotent, so a failed run can simply be
// repeated.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/logging"
	"github.com/kozaktomas/face-indexer/internal/metrics"
	"github.com/kozaktomas/face-indexer/internal/search"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// ErrArtifactsFailed is returned when at least one artifact could not be
// rewritten. The registry is left untouched so a retry resolves the same keys.
var ErrArtifactsFailed = errors.New("artifact rewrite failed")

// Artifact names reported in results.
const (
	ArtifactContent    = "content"
	ArtifactMapData    = "mapdata"
	ArtifactRaw        = "raw"
	ArtifactTimeSeries = "timeseries"
	ArtifactMetadata   = "metadata"
	ArtifactCaptions   = "vtt"
	ArtifactSearch     = "search"
)

// ArtifactResult is the outcome of one artifact rewrite.
type ArtifactResult struct {
	ContentID string `json:"contentId"`
	Artifact  string `json:"artifact"`
	Changed   bool   `json:"changed"`
	Error     string `json:"error,omitempty"`
}

// Result summarizes a reconcile run.
type Result struct {
	Category        string           `json:"category"`
	Contents        []string         `json:"contents"`
	Artifacts       []ArtifactResult `json:"artifacts"`
	Failed          int              `json:"failed"`
	RegistryUpdated bool             `json:"registryUpdated"`
}

type collector struct {
	mu      sync.Mutex
	logger  *zap.Logger
	results []ArtifactResult
	failed  int
}

func (c *collector) record(contentID, artifact string, changed bool, err error) {
	res := ArtifactResult{ContentID: contentID, Artifact: artifact, Changed: changed}
	outcome := "unchanged"
	switch {
	case err != nil:
		res.Error = err.Error()
		outcome = "failed"
		c.logger.Warn("artifact rewrite failed",
			zap.String(logging.FieldContentID, contentID),
			zap.String(logging.FieldArtifact, artifact),
			zap.Error(err))
	case changed:
		outcome = "updated"
	}
	metrics.ArtifactUpdates.WithLabelValues(artifact, outcome).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	if err != nil {
		c.failed++
	}
}

// Reconciler rewrites derived artifacts after identity corrections.
type Reconciler struct {
	store       storage.ObjectStore
	bucket      string
	registry    database.FaceRegistry
	index       search.Index
	indexName   string
	logger      *zap.Logger
	concurrency int
	category    string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithConcurrency bounds the number of content items rewritten in parallel.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithCategory sets the category used when a request names none.
func WithCategory(name string) Option {
	return func(r *Reconciler) { r.category = name }
}

// New creates a reconciler over the artifacts in bucket and the content
// documents in indexName.
func New(store storage.ObjectStore, bucket string, registry database.FaceRegistry, index search.Index, indexName string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		bucket:      bucket,
		registry:    registry,
		index:       index,
		indexName:   indexName,
		logger:      zap.NewNop(),
		concurrency: constants.ReconcileConcurrency,
		category:    constants.DefaultCategory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies req to the explicit content item (if any), then to every
// content item the search index links to the affected faces, and finally to
// the registry.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	name := req.Category
	if name == "" {
		name = r.category
	}
	cat, err := LookupCategory(name)
	if err != nil {
		return nil, err
	}

	p, err := resolve(ctx, r.registry, cat, &req)
	if err != nil {
		return nil, err
	}

	q := search.Query{Index: r.indexName, Field: cat.SearchField(), Values: req.faceIDs()}
	if req.ContentID != "" {
		q.Exclude = []string{req.ContentID}
	}
	discovered, err := r.index.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("discover content: %w", err)
	}

	logger := r.logger.With(zap.String("category", cat.Name))
	logger.Info("reconciling identities",
		zap.Int("renames", len(req.Renames)),
		zap.Int("deletes", len(req.Deletes)),
		zap.Int("contents", len(discovered)))

	col := &collector{logger: logger}
	res := &Result{Category: cat.Name}

	if req.ContentID != "" {
		res.Contents = append(res.Contents, req.ContentID)
		r.reconcileContent(ctx, p, req.ContentID, col)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, contentID := range discovered {
		g.Go(func() error {
			r.reconcileContent(gctx, p, contentID, col)
			return nil
		})
	}
	_ = g.Wait()
	res.Contents = append(res.Contents, discovered...)
	metrics.ReconciledContents.Add(float64(len(res.Contents)))

	sort.SliceStable(col.results, func(i, j int) bool {
		if col.results[i].ContentID != col.results[j].ContentID {
			return col.results[i].ContentID < col.results[j].ContentID
		}
		return col.results[i].Artifact < col.results[j].Artifact
	})
	res.Artifacts = col.results
	res.Failed = col.failed
	if res.Failed > 0 {
		return res, fmt.Errorf("%w: %d artifacts", ErrArtifactsFailed, res.Failed)
	}

	if err := r.updateRegistry(ctx, p, &req); err != nil {
		return res, err
	}
	res.RegistryUpdated = true
	return res, nil
}

func (r *Reconciler) updateRegistry(ctx context.Context, p *plan, req *Request) error {
	var errs []error
	for _, op := range p.renames {
		if err := r.registry.UpdateCeleb(ctx, op.faceID, op.target); err != nil {
			errs = append(errs, fmt.Errorf("rename %s: %w", op.faceID, err))
		}
	}
	for _, d := range req.Deletes {
		if err := r.registry.DeleteFace(ctx, d.FaceID); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", d.FaceID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("update registry: %w", err)
	}
	return nil
}

func (r *Reconciler) reconcileContent(ctx context.Context, p *plan, contentID string, col *collector) {
	still, err := r.store.Exists(ctx, r.bucket, p.cat.stillKey(contentID))
	if err != nil {
		col.record(contentID, ArtifactContent, false, err)
		return
	}
	if still {
		r.reconcileStill(ctx, p, contentID, col)
		return
	}

	run := func(wg *sync.WaitGroup, artifact string, rewrite func(context.Context, *plan, string) (bool, error)) {
		wg.Go(func() {
			changed, err := rewrite(ctx, p, contentID)
			col.record(contentID, artifact, changed, err)
		})
	}

	var all, docInputs sync.WaitGroup
	run(&all, ArtifactMapData, r.rewriteMapData)
	run(&all, ArtifactTimeSeries, r.rewriteTimeSeries)
	run(&all, ArtifactCaptions, r.rewriteCaptions)
	run(&docInputs, ArtifactRaw, r.rewriteRaw)
	run(&docInputs, ArtifactMetadata, r.rewriteMetadata)
	all.Go(func() {
		docInputs.Wait()
		changed, err := r.rebuildSearchDoc(ctx, p, contentID)
		col.record(contentID, ArtifactSearch, changed, err)
	})
	all.Wait()
}

func (r *Reconciler) rewriteMapData(ctx context.Context, p *plan, contentID string) (bool, error) {
	return rewriteJSON(ctx, r, p.cat.mapDataKey(contentID), func(md *mapData) bool {
		return applyMapData(p, md)
	})
}

func (r *Reconciler) rewriteTimeSeries(ctx context.Context, p *plan, contentID string) (bool, error) {
	return rewriteJSON(ctx, r, p.cat.timeSeriesKey(contentID), func(ts *timeSeries) bool {
		return applyTimeSeries(p, *ts)
	})
}

func (r *Reconciler) rewriteMetadata(ctx context.Context, p *plan, contentID string) (bool, error) {
	return rewriteJSON(ctx, r, p.cat.metadataKey(contentID), func(occ *occurrences) bool {
		return applyOccurrences(p, *occ)
	})
}

func (r *Reconciler) rewriteRaw(ctx context.Context, p *plan, contentID string) (bool, error) {
	key := p.cat.rawKey(contentID)
	doc, err := r.load(ctx, key)
	if err != nil || doc == nil {
		return false, err
	}
	rewritten, changed, err := applyRawJSON(p, doc)
	if err != nil {
		r.logger.Warn("skipping unparseable artifact", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	if !changed {
		return false, nil
	}
	return true, r.save(ctx, key, rewritten)
}

// rewriteJSON loads a JSON artifact, applies fn and stores the result when fn
// reports a change. Missing and unparseable artifacts are left alone.
func rewriteJSON[T any](ctx context.Context, r *Reconciler, key string, fn func(*T) bool) (bool, error) {
	data, err := r.load(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		r.logger.Warn("skipping unparseable artifact", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	if !fn(&v) {
		return false, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal %s: %w", key, err)
	}
	return true, r.save(ctx, key, out)
}

// load returns nil data for a missing object.
func (r *Reconciler) load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.store.Download(ctx, r.bucket, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return data, nil
}

func (r *Reconciler) save(ctx context.Context, key string, data []byte) error {
	if err := storage.Put(ctx, r.store, r.bucket, key, data); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
