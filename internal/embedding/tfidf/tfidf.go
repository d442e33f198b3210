package tfidf

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"

	"docintel/internal/textutil"
)

var (
	ErrNotPrepared = errors.New("tfidf embedder not prepared")
	ErrEmptyCorpus = errors.New("empty corpus for TF-IDF prepare")
	ErrNoTerms     = errors.New("no content words found in corpus")
)

// model is an immutable fitted vocabulary. Prepare swaps it in whole, so
// Embed never sees a half-built index.
type model struct {
	index map[string]int
	idf   []float64
}

// Embedder is a TF-IDF vectorizer fitted on the ingested corpus.
type Embedder struct {
	maxTerms int
	fitted   atomic.Pointer[model]
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithMaxTerms keeps only the n terms with the highest document frequency.
// Zero keeps every term.
func WithMaxTerms(n int) Option {
	return func(e *Embedder) { e.maxTerms = n }
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder(opts ...Option) *Embedder {
	e := &Embedder{}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Embedder) Name() string { return "tfidf" }

// Prepare fits the vocabulary on corpus, replacing any earlier fit.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return ErrEmptyCorpus
	}
	df := documentFrequencies(corpus)
	if len(df) == 0 {
		return ErrNoTerms
	}
	e.fitted.Store(fit(df, len(corpus), e.maxTerms))
	return nil
}

func documentFrequencies(corpus []string) map[string]int {
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range textutil.ContentWords(text) {
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				df[tok]++
			}
		}
	}
	return df
}

func fit(df map[string]int, docs, maxTerms int) *model {
	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	if maxTerms > 0 && len(terms) > maxTerms {
		slices.SortFunc(terms, func(a, b string) int {
			if c := cmp.Compare(df[b], df[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		terms = terms[:maxTerms]
	}
	// Column order must not depend on map iteration.
	slices.Sort(terms)

	m := &model{index: make(map[string]int, len(terms)), idf: make([]float64, len(terms))}
	n := float64(docs)
	for i, t := range terms {
		m.index[t] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1 // smoothed
	}
	return m
}

// Dimension is zero until Prepare succeeds.
func (e *Embedder) Dimension() int {
	if m := e.fitted.Load(); m != nil {
		return len(m.idf)
	}
	return 0
}

// Embed returns the L2-normalised TF-IDF vector of text. Text without any
// vocabulary term embeds to the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	m := e.fitted.Load()
	if m == nil {
		return nil, ErrNotPrepared
	}
	vec := make([]float64, len(m.idf))
	total := 0
	for _, tok := range textutil.ContentWords(text) {
		if i, ok := m.index[tok]; ok {
			vec[i]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}
	var norm float64
	for i, count := range vec {
		if count == 0 {
			continue
		}
		vec[i] = count / float64(total) * m.idf[i]
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
