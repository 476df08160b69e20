package database

import (
	"time"

	"github.com/kozaktomas/face-indexer/internal/facematch"
)

// AgeRange is the estimated age bracket of a face.
type AgeRange struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// FaceRecord is one indexed face stored in the registry.
type FaceRecord struct {
	FaceID          string        `json:"faceId"`
	CollectionID    string        `json:"collectionId"`
	ExternalImageID string        `json:"externalImageId"`
	UserID          string        `json:"userId,omitempty"`
	Coord           facematch.Box `json:"coord"` // face box relative to the source crop
	Celeb           string        `json:"celeb,omitempty"`
	Confidence      float64       `json:"confidence"`
	Gender          string        `json:"gender,omitempty"`
	AgeRange        *AgeRange     `json:"ageRange,omitempty"`
	Key             string        `json:"key,omitempty"`          // thumbnail object key
	FullImageKey    string        `json:"fullImageKey,omitempty"` // down-scaled full image key
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}
