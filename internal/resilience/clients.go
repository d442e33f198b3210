package resilience

import (
	"context"

	"docintel/internal/domain"
)

// Completer applies a Policy to every completion call.
type Completer struct {
	next   domain.Completer
	policy Policy
}

// WrapCompleter decorates c with p.
func WrapCompleter(c domain.Completer, p Policy) *Completer {
	return &Completer{next: c, policy: p}
}

func (c *Completer) Model() string { return c.next.Model() }

func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	var out string
	err := Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		out, err = c.next.Complete(ctx, req)
		return err
	})
	return out, err
}

// Embedder applies a Policy to every embedding call.
type Embedder struct {
	next   domain.Embedder
	policy Policy
}

type corpusEmbedder struct {
	*Embedder
	corpus domain.CorpusEmbedder
}

func (c *corpusEmbedder) Prepare(corpus []string) error { return c.corpus.Prepare(corpus) }

// WrapEmbedder decorates e with p. The result keeps implementing
// domain.CorpusEmbedder when e does.
func WrapEmbedder(e domain.Embedder, p Policy) domain.Embedder {
	w := &Embedder{next: e, policy: p}
	if ce, ok := e.(domain.CorpusEmbedder); ok {
		return &corpusEmbedder{Embedder: w, corpus: ce}
	}
	return w
}

func (e *Embedder) Name() string { return e.next.Name() }

func (e *Embedder) Dimension() int { return e.next.Dimension() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var out []float64
	err := Do(ctx, e.policy, func(ctx context.Context) error {
		var err error
		out, err = e.next.Embed(ctx, text)
		return err
	})
	return out, err
}

// VectorStore applies a Policy to every vector store call.
type VectorStore struct {
	next   domain.VectorStore
	policy Policy
}

// WrapVectorStore decorates s with p.
func WrapVectorStore(s domain.VectorStore, p Policy) *VectorStore {
	return &VectorStore{next: s, policy: p}
}

func (s *VectorStore) Init(ctx context.Context, dimension int) error {
	return Do(ctx, s.policy, func(ctx context.Context) error { return s.next.Init(ctx, dimension) })
}

func (s *VectorStore) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	return Do(ctx, s.policy, func(ctx context.Context) error { return s.next.Upsert(ctx, chunks, vectors) })
}

func (s *VectorStore) Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	var out []domain.Match
	err := Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		out, err = s.next.Search(ctx, req)
		return err
	})
	return out, err
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		n, err = s.next.Count(ctx)
		return err
	})
	return n, err
}

func (s *VectorStore) DeleteDoc(ctx context.Context, docID string) error {
	return Do(ctx, s.policy, func(ctx context.Context) error { return s.next.DeleteDoc(ctx, docID) })
}

func (s *VectorStore) Clear(ctx context.Context) error {
	return Do(ctx, s.policy, func(ctx context.Context) error { return s.next.Clear(ctx) })
}
