package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps objects in a local pebble database, keyed "bucket/key".
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble store at dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("storage path is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing pebble store: %w", err)
	}
	return nil
}

func pebbleKey(bucket, key string) []byte {
	return []byte(bucket + "/" + key)
}

// Download returns the object content or ErrNotFound.
func (p *PebbleStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	val, closer, err := p.db.Get(pebbleKey(bucket, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Upload stores data under prefix/name with a synced write.
func (p *PebbleStore) Upload(ctx context.Context, bucket, prefix, name string, data []byte) (string, error) {
	key := Join(prefix, name)
	if err := validate(bucket, key); err != nil {
		return "", err
	}
	if err := p.db.Set(pebbleKey(bucket, key), data, pebble.Sync); err != nil {
		return "", fmt.Errorf("set %s/%s: %w", bucket, key, err)
	}
	return key, nil
}

// Delete removes an object.
func (p *PebbleStore) Delete(ctx context.Context, bucket, key string) error {
	if err := validate(bucket, key); err != nil {
		return err
	}
	if err := p.db.Delete(pebbleKey(bucket, key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Exists checks whether an object exists.
func (p *PebbleStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, closer, err := p.db.Get(pebbleKey(bucket, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	closer.Close()
	return true, nil
}
