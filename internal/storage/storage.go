// Package storage provides the object storage used for detection lists,
// checkpoints, face images and derived per-content artifacts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Download when the object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a flat bucket/key object store.
type ObjectStore interface {
	// Download returns the object content or ErrNotFound
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	// Upload stores data under prefix/name and returns the full key
	Upload(ctx context.Context, bucket, prefix, name string, data []byte) (string, error)
	// Delete removes an object; deleting a missing object is not an error
	Delete(ctx context.Context, bucket, key string) error
	// Exists checks whether an object exists
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Join builds an object key from a prefix and a name.
func Join(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimPrefix(name, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// SplitKey splits a full key into prefix and name, the inverse of Join.
func SplitKey(key string) (string, string) {
	dir, name := path.Split(strings.TrimPrefix(key, "/"))
	return strings.TrimSuffix(dir, "/"), name
}

// Put overwrites the object at a full key.
func Put(ctx context.Context, s ObjectStore, bucket, key string, data []byte) error {
	prefix, name := SplitKey(key)
	if _, err := s.Upload(ctx, bucket, prefix, name, data); err != nil {
		return err
	}
	return nil
}

// DownloadJSON downloads an object and unmarshals it into T.
func DownloadJSON[T any](ctx context.Context, s ObjectStore, bucket, key string) (*T, error) {
	data, err := s.Download(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal %s/%s: %w", bucket, key, err)
	}
	return &result, nil
}

// PutJSON marshals v and stores it at a full key.
func PutJSON(ctx context.Context, s ObjectStore, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal %s/%s: %w", bucket, key, err)
	}
	return Put(ctx, s, bucket, key, data)
}

func validate(bucket, key string) error {
	if bucket == "" {
		return errors.New("bucket is required")
	}
	if key == "" {
		return errors.New("key is required")
	}
	return nil
}
