package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-indexer/internal/database"
	"github.com/kozaktomas/face-indexer/internal/database/mock"
	"github.com/kozaktomas/face-indexer/internal/recognition"
)

type pagedLister struct {
	pages map[string]recognition.ListFacesOutput
	err   error
}

func (p *pagedLister) ListFaces(ctx context.Context, collectionID, token string, maxResults int) (*recognition.ListFacesOutput, error) {
	if p.err != nil {
		return nil, p.err
	}
	page := p.pages[token]
	return &page, nil
}

func TestImportFaces(t *testing.T) {
	ctx := context.Background()
	reg := mock.NewMockFaceRegistry()
	reg.AddFace(database.FaceRecord{FaceID: "known", Celeb: "Keep Me"})

	lister := &pagedLister{pages: map[string]recognition.ListFacesOutput{
		"": {
			Faces: []recognition.Face{
				{FaceID: "known"},
				{FaceID: "f1", ExternalImageID: "job-1", Confidence: 99.5,
					BoundingBox: recognition.BoundingBox{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4}},
			},
			NextToken: "p2",
		},
		"p2": {Faces: []recognition.Face{{FaceID: "f2"}}},
	}}

	next, n, err := database.ImportFaces(ctx, reg, lister, "faces", "")
	require.NoError(t, err)
	assert.Equal(t, "p2", next)
	assert.Equal(t, 1, n)

	next, n, err = database.ImportFaces(ctx, reg, lister, "faces", next)
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Equal(t, 1, n)

	assert.Equal(t, 3, reg.Count())

	known, err := reg.Lookup(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, "Keep Me", known.Celeb)

	f1, err := reg.Lookup(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "faces", f1.CollectionID)
	assert.Equal(t, "job-1", f1.ExternalImageID)
	assert.InDelta(t, 0.3, f1.Coord.Width, 0.0001)
}

func TestImportFacesListError(t *testing.T) {
	reg := mock.NewMockFaceRegistry()
	_, _, err := database.ImportFaces(context.Background(), reg, &pagedLister{err: errors.New("denied")}, "faces", "")
	assert.ErrorContains(t, err, "denied")
}
