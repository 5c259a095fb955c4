package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ObjectStore is the surface the pipeline needs from a bucket.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// maxCachedBody keeps large artifacts (the tiled archive, the full
// collection) out of the memory cache.
const maxCachedBody = 4 << 20

// Cached is a read-through LRU in front of an ObjectStore. Puts are
// written through so repeated runs in one process skip re-downloading
// unchanged per-project blobs.
type Cached struct {
	origin ObjectStore
	blobs  *lru.Cache[string, []byte]
}

// NewCached fronts origin with an LRU of at most maxEntries bodies.
func NewCached(origin ObjectStore, maxEntries int) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	blobs, err := lru.New[string, []byte](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cached{origin: origin, blobs: blobs}, nil
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, error) {
	if body, ok := c.blobs.Get(key); ok {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	body, err := c.origin.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.remember(key, body)
	return body, nil
}

func (c *Cached) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := c.origin.Put(ctx, key, body, contentType); err != nil {
		// The object state is unknown after a failed put.
		c.blobs.Remove(key)
		return err
	}
	c.remember(key, body)
	return nil
}

func (c *Cached) List(ctx context.Context, prefix string) ([]string, error) {
	return c.origin.List(ctx, prefix)
}

func (c *Cached) remember(key string, body []byte) {
	if len(body) > maxCachedBody {
		c.blobs.Remove(key)
		return
	}
	kept := make([]byte, len(body))
	copy(kept, body)
	c.blobs.Add(key, kept)
}
