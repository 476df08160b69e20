package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/database/mock"
	"github.com/kozaktomas/face-indexer/internal/reconcile"
)

type stubReconciler struct {
	req *reconcile.Request
	res *reconcile.Result
	err error
}

func (s *stubReconciler) Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error) {
	s.req = &req
	return s.res, s.err
}

func TestFacesHandler_Reconcile(t *testing.T) {
	partial := &reconcile.Result{
		Category: "faceMatch",
		Contents: []string{"video-1"},
		Artifacts: []reconcile.ArtifactResult{
			{ContentID: "video-1", Artifact: reconcile.ArtifactRaw, Error: "upload failed"},
		},
		Failed: 1,
	}

	tests := []struct {
		name       string
		body       any
		res        *reconcile.Result
		err        error
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "rename",
			body:       reconcile.Request{Renames: []reconcile.Rename{{FaceID: "f1", Celeb: "Jane Doe"}}},
			res:        &reconcile.Result{Category: "faceMatch", Contents: []string{"video-1"}, RegistryUpdated: true},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "empty request",
			body:       reconcile.Request{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"renames":[],"bogus":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "partial failure",
			body:       reconcile.Request{Deletes: []reconcile.Delete{{FaceID: "f2"}}},
			res:        partial,
			err:        fmt.Errorf("1 artifact failed: %w", reconcile.ErrArtifactsFailed),
			wantStatus: http.StatusMultiStatus,
			wantCalled: true,
		},
		{
			name:       "registry failure",
			body:       reconcile.Request{Deletes: []reconcile.Delete{{FaceID: "f2"}}},
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCalled: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc := &stubReconciler{res: tc.res, err: tc.err}
			h := NewFacesHandler(rc, mock.NewMockFaceRegistry(), zap.NewNop())

			rec := httptest.NewRecorder()
			h.Reconcile(rec, jsonRequest(t, http.MethodPost, "/api/v1/reconcile", tc.body))

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantCalled, rc.req != nil)
			if tc.wantStatus == http.StatusMultiStatus {
				res := decodeBody[reconcile.Result](t, rec)
				assert.Equal(t, 1, res.Failed)
				assert.False(t, res.RegistryUpdated)
			}
		})
	}
}

func TestFacesHandler_Get(t *testing.T) {
	registry := mock.NewMockFaceRegistry()
	registry.AddFace(database.FaceRecord{FaceID: "f1", CollectionID: "col", Celeb: "Jane Doe"})
	h := NewFacesHandler(&stubReconciler{}, registry, zap.NewNop())

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Get(rec, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/faces/f1", nil), map[string]string{"faceId": "f1"}))

		require.Equal(t, http.StatusOK, rec.Code)
		face := decodeBody[database.FaceRecord](t, rec)
		assert.Equal(t, "Jane Doe", face.Celeb)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Get(rec, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/faces/f9", nil), map[string]string{"faceId": "f9"}))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("registry error", func(t *testing.T) {
		failing := mock.NewMockFaceRegistry()
		failing.LookupError = errors.New("timeout")
		h := NewFacesHandler(&stubReconciler{}, failing, zap.NewNop())

		rec := httptest.NewRecorder()
		h.Get(rec, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/faces/f1", nil), map[string]string{"faceId": "f1"}))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
