package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Memory is an in-process Store backed by ristretto.
type Memory struct {
	cache *ristretto.Cache[string, []float64]
	ttl   time.Duration
}

// NewMemory creates a cache holding roughly maxVectors entries.
func NewMemory(maxVectors int64, ttl time.Duration) (*Memory, error) {
	if maxVectors <= 0 {
		maxVectors = 10_000
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []float64]{
		NumCounters:        maxVectors * 10,
		MaxCost:            maxVectors,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Memory{cache: c, ttl: ttl}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]float64, bool, error) {
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

// Set stores vec. Admission is asynchronous; Set waits so a following Get hits.
func (m *Memory) Set(_ context.Context, key string, vec []float64) error {
	m.cache.SetWithTTL(key, vec, 1, m.ttl)
	m.cache.Wait()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.cache.Clear()
	return nil
}

func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
