package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/aggregate"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/indexer"
	"github.com/kozaktomas/face-indexer/internal/partition"
	"github.com/kozaktomas/face-indexer/internal/pipeline"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// IndexingHandler exposes the three stages of an indexing run as separate
// calls, so an external orchestrator can drive them.
type IndexingHandler struct {
	store      storage.ObjectStore
	runner     pipeline.Runner
	aggregator *aggregate.Aggregator
	filter     facematch.Filter
	batch      partition.Request // concurrency settings copied into every partition request
	logger     *zap.Logger
}

// NewIndexingHandler creates the handler. filter is used when a request carries none.
func NewIndexingHandler(store storage.ObjectStore, runner pipeline.Runner, aggregator *aggregate.Aggregator, filter facematch.Filter, maxConcurrency, maxFacesPerIndex int, logger *zap.Logger) *IndexingHandler {
	return &IndexingHandler{
		store:      store,
		runner:     runner,
		aggregator: aggregator,
		filter:     filter,
		batch:      partition.Request{MaxConcurrency: maxConcurrency, MaxFacesPerIndex: maxFacesPerIndex},
		logger:     logger,
	}
}

// PartitionRequest names a detection list, either inline or as an object key.
type PartitionRequest struct {
	Bucket string            `json:"bucket"`
	Prefix string            `json:"prefix"`
	Key    string            `json:"key,omitempty"`
	Items  []facematch.Item  `json:"items,omitempty"`
	Filter *facematch.Filter `json:"filter,omitempty"`
}

// PartitionResponse lists the work descriptors.
type PartitionResponse struct {
	Iterators []partition.Iterator `json:"iterators"`
}

// Partition handles POST /api/v1/partition.
func (h *IndexingHandler) Partition(w http.ResponseWriter, r *http.Request) {
	var req PartitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Bucket == "" {
		respondError(w, http.StatusBadRequest, "bucket is required")
		return
	}

	items := req.Items
	if req.Key != "" {
		loaded, err := partition.LoadDetections(r.Context(), h.store, req.Bucket, req.Key)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "detection list not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		items = loaded
	}

	preq := h.batch
	preq.Bucket = req.Bucket
	preq.Prefix = req.Prefix
	preq.Items = items
	preq.Filter = h.filterOr(req.Filter)
	iterators, err := partition.Partition(r.Context(), h.store, preq)
	if err != nil {
		h.logger.Error("partition failed", zap.String("prefix", sanitizeForLog(req.Prefix)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, PartitionResponse{Iterators: iterators})
}

// Index handles POST /api/v1/index. The body is a work descriptor or a
// PROCESSING envelope returned by a previous call.
func (h *IndexingHandler) Index(w http.ResponseWriter, r *http.Request) {
	var inv indexer.Invocation
	if err := decodeJSON(w, r, &inv); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if inv.Bucket == "" || inv.Output == "" {
		respondError(w, http.StatusBadRequest, "bucket and output are required")
		return
	}
	if inv.Filter == (facematch.Filter{}) {
		inv.Filter = h.filter
	}

	env, err := h.runner.Run(r.Context(), inv)
	switch {
	case errors.Is(err, indexer.ErrRetryCeiling):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("index invocation failed", zap.String("output", sanitizeForLog(inv.Output)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, env)
}

// Aggregate handles POST /api/v1/aggregate.
func (h *IndexingHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregate.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Bucket == "" {
		respondError(w, http.StatusBadRequest, "bucket is required")
		return
	}

	summary, err := h.aggregator.Aggregate(r.Context(), req)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("aggregate failed", zap.String("prefix", sanitizeForLog(req.Prefix)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *IndexingHandler) filterOr(f *facematch.Filter) facematch.Filter {
	if f == nil {
		return h.filter
	}
	return *f
}
