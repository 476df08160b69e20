package database

import (
	"context"
)

// FaceReader provides read-only access to the face registry
type FaceReader interface {
	// Lookup retrieves a face by id, returns nil if not found
	Lookup(ctx context.Context, faceID string) (*FaceRecord, error)
	// BatchGet retrieves faces by id; missing ids are absent from the result
	BatchGet(ctx context.Context, faceIDs []string) (map[string]FaceRecord, error)
}

// FaceRegistry provides read and write access to the face registry
type FaceRegistry interface {
	FaceReader

	// RegisterFace stores a face, replacing an existing record with the same id
	RegisterFace(ctx context.Context, rec FaceRecord) error
	// UpdateCeleb sets the identity name of a face
	UpdateCeleb(ctx context.Context, faceID, celeb string) error
	// DeleteFace removes a face; deleting a missing face is not an error
	DeleteFace(ctx context.Context, faceID string) error
}
