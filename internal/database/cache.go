package database

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedRegistry keeps recently read face records in an LRU cache.
// Writes go to the wrapped registry first and then drop the cached entry.
type CachedRegistry struct {
	next  FaceRegistry
	cache *lru.Cache[string, FaceRecord]
}

// NewCachedRegistry wraps next with an LRU cache of the given size.
func NewCachedRegistry(next FaceRegistry, size int) (*CachedRegistry, error) {
	cache, err := lru.New[string, FaceRecord](size)
	if err != nil {
		return nil, fmt.Errorf("create registry cache: %w", err)
	}
	return &CachedRegistry{next: next, cache: cache}, nil
}

// Lookup returns a cached record or reads it through.
func (c *CachedRegistry) Lookup(ctx context.Context, faceID string) (*FaceRecord, error) {
	if rec, ok := c.cache.Get(faceID); ok {
		return &rec, nil
	}
	rec, err := c.next.Lookup(ctx, faceID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		c.cache.Add(faceID, *rec)
	}
	return rec, nil
}

// BatchGet serves cached records and reads the rest in one call.
func (c *CachedRegistry) BatchGet(ctx context.Context, faceIDs []string) (map[string]FaceRecord, error) {
	result := make(map[string]FaceRecord, len(faceIDs))
	var missing []string
	for _, id := range faceIDs {
		if rec, ok := c.cache.Get(id); ok {
			result[id] = rec
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}
	fetched, err := c.next.BatchGet(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, rec := range fetched {
		c.cache.Add(id, rec)
		result[id] = rec
	}
	return result, nil
}

func (c *CachedRegistry) RegisterFace(ctx context.Context, rec FaceRecord) error {
	defer c.cache.Remove(rec.FaceID)
	return c.next.RegisterFace(ctx, rec)
}

func (c *CachedRegistry) UpdateCeleb(ctx context.Context, faceID, celeb string) error {
	defer c.cache.Remove(faceID)
	return c.next.UpdateCeleb(ctx, faceID, celeb)
}

func (c *CachedRegistry) DeleteFace(ctx context.Context, faceID string) error {
	defer c.cache.Remove(faceID)
	return c.next.DeleteFace(ctx, faceID)
}

// Len returns the number of cached records.
func (c *CachedRegistry) Len() int {
	return c.cache.Len()
}
