package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/recognition"
)

// ImportPageSize is the number of collection faces requested per page.
const ImportPageSize = 100

// FaceLister pages through the faces stored in a recognition collection.
type FaceLister interface {
	ListFaces(ctx context.Context, collectionID, token string, maxResults int) (*recognition.ListFacesOutput, error)
}

// ImportFaces registers one page of collection faces that the registry does
// not know yet. It returns the token of the next page (empty after the last
// page) and the number of newly registered faces.
func ImportFaces(ctx context.Context, registry FaceRegistry, lister FaceLister, collectionID, token string) (string, int, error) {
	page, err := lister.ListFaces(ctx, collectionID, token, ImportPageSize)
	if err != nil {
		return "", 0, fmt.Errorf("list collection faces: %w", err)
	}

	ids := make([]string, 0, len(page.Faces))
	for _, f := range page.Faces {
		ids = append(ids, f.FaceID)
	}
	known, err := registry.BatchGet(ctx, ids)
	if err != nil {
		return "", 0, fmt.Errorf("load known faces: %w", err)
	}

	imported := 0
	for _, f := range page.Faces {
		if _, ok := known[f.FaceID]; ok || f.FaceID == "" {
			continue
		}
		rec := FaceRecord{
			FaceID:          f.FaceID,
			CollectionID:    collectionID,
			ExternalImageID: f.ExternalImageID,
			UserID:          f.UserID,
			Coord: facematch.Box{
				Left:   f.BoundingBox.Left,
				Top:    f.BoundingBox.Top,
				Width:  f.BoundingBox.Width,
				Height: f.BoundingBox.Height,
			},
			Confidence: f.Confidence,
		}
		if err := registry.RegisterFace(ctx, rec); err != nil {
			return "", imported, fmt.Errorf("register face %s: %w", f.FaceID, err)
		}
		imported++
	}
	return page.NextToken, imported, nil
}
