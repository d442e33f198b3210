// Package cache stores query embeddings so repeated questions skip the
// embedding call. Embeddings are deterministic per model, which makes them
// safe to cache by (model, text).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is a vector cache keyed by opaque strings.
type Store interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Set(ctx context.Context, key string, vec []float64) error
	Clear(ctx context.Context) error
	Close() error
}

// Key derives a cache key from the embedder identity and the text.
func Key(namespace, text string) string {
	h := sha256.Sum256([]byte(namespace + "\x00" + text))
	return namespace + ":" + hex.EncodeToString(h[:16])
}

// Nop is a Store that never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]float64, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []float64) error         { return nil }
func (Nop) Clear(context.Context) error                          { return nil }
func (Nop) Close() error                                         { return nil }

const defaultTTL = time.Hour
