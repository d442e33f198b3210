// Package cached decorates an Embedder with a vector cache.
package cached

import (
	"context"

	"docintel/internal/cache"
	"docintel/internal/domain"
	"docintel/internal/logger"
)

// Embedder serves repeated texts from a cache.Store.
type Embedder struct {
	inner domain.Embedder
	store cache.Store
	log   logger.Logger
}

// corpusEmbedder keeps the Prepare method visible when the inner embedder has one.
type corpusEmbedder struct {
	*Embedder
	prep domain.CorpusEmbedder
}

// New wraps inner. The result implements domain.CorpusEmbedder iff inner does.
func New(inner domain.Embedder, store cache.Store, log logger.Logger) domain.Embedder {
	if log == nil {
		log = logger.NewNop()
	}
	e := &Embedder{inner: inner, store: store, log: log}
	if ce, ok := inner.(domain.CorpusEmbedder); ok {
		return &corpusEmbedder{Embedder: e, prep: ce}
	}
	return e
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

// Embed returns the cached vector for text or computes and stores it.
// Cache failures degrade to a direct call.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := cache.Key(e.inner.Name(), text)
	if vec, ok, err := e.store.Get(ctx, key); err != nil {
		e.log.Warn("embedding cache read failed", "err", err)
	} else if ok {
		return vec, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.store.Set(ctx, key, vec); err != nil {
		e.log.Warn("embedding cache write failed", "err", err)
	}
	return vec, nil
}

// Prepare refits the inner embedder; every cached vector is stale afterwards.
func (c *corpusEmbedder) Prepare(corpus []string) error {
	if err := c.store.Clear(context.Background()); err != nil {
		c.log.Warn("embedding cache clear failed", "err", err)
	}
	return c.prep.Prepare(corpus)
}
