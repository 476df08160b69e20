package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/reconcile"
)

// Reconciler applies identity corrections.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// FacesHandler serves identity corrections and registry lookups.
type FacesHandler struct {
	reconciler Reconciler
	registry   database.FaceReader
	logger     *zap.Logger
}

func NewFacesHandler(reconciler Reconciler, registry database.FaceReader, logger *zap.Logger) *FacesHandler {
	return &FacesHandler{reconciler: reconciler, registry: registry, logger: logger}
}

// Reconcile handles POST /api/v1/reconcile. A run where some artifacts failed
// answers 207 with the per-artifact results.
func (h *FacesHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcile.Request
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.reconciler.Reconcile(r.Context(), req)
	switch {
	case errors.Is(err, reconcile.ErrArtifactsFailed):
		respondJSON(w, http.StatusMultiStatus, res)
	case err != nil:
		h.logger.Error("reconcile failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

// Get handles GET /api/v1/faces/{faceId}.
func (h *FacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "faceId")
	rec, err := h.registry.Lookup(r.Context(), faceID)
	if err != nil {
		h.logger.Error("face lookup failed", zap.String("face_id", sanitizeForLog(faceID)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to look up face")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
