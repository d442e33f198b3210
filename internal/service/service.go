// Package service ties ingestion and question answering together behind the
// API used by the HTTP server, the CLI and the TUI.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"docintel/internal/agent"
	"docintel/internal/domain"
	"docintel/internal/extract"
	"docintel/internal/logger"
	"docintel/internal/metrics"
)

var ErrNoDocuments = errors.New("no supported documents found")

// Runner answers one query. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, query string) (*agent.State, error)
}

// Options wires a Service. Chunker, Embedder, Store and Runner are required.
type Options struct {
	Chunker             domain.Chunker
	Embedder            domain.Embedder
	Store               domain.VectorStore
	Summarizer          domain.Summarizer
	SummaryMaxSentences int
	Runner              Runner
	ModelName           string
	Logger              logger.Logger
	Metrics             *metrics.Metrics

	// IndexLock is write-held while documents are ingested. Pass its
	// RLocker to agent.Deps.RetrievalLock so searches never observe a
	// half-rebuilt index. Nil gives the service a private lock.
	IndexLock *sync.RWMutex
}

// Service ingests documents into the vector store and answers questions over them.
type Service struct {
	chunker             domain.Chunker
	embedder            domain.Embedder
	store               domain.VectorStore
	summarizer          domain.Summarizer
	summaryMaxSentences int
	runner              Runner
	modelName           string
	log                 logger.Logger
	metrics             *metrics.Metrics

	// mu serialises ingestion; queries only share it through the agent's retrieval lock.
	mu          *sync.RWMutex
	corpus      []domain.Chunk
	initialized bool
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocID         string `json:"doc_id"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created"`
	ChunksStored  int    `json:"chunks_stored"`
	Summary       string `json:"summary,omitempty"`
}

// Health is the readiness snapshot reported by the API.
type Health struct {
	Status      string `json:"status"`
	VectorCount int    `json:"vector_count"`
	ModelLoaded bool   `json:"model_loaded"`
	Embedder    string `json:"embedder"`
	Model       string `json:"model,omitempty"`
}

func New(opts Options) (*Service, error) {
	if opts.Chunker == nil || opts.Embedder == nil || opts.Store == nil || opts.Runner == nil {
		return nil, errors.New("service: chunker, embedder, store and runner are required")
	}
	s := &Service{
		chunker:             opts.Chunker,
		embedder:            opts.Embedder,
		store:               opts.Store,
		summarizer:          opts.Summarizer,
		summaryMaxSentences: opts.SummaryMaxSentences,
		runner:              opts.Runner,
		modelName:           opts.ModelName,
		log:                 opts.Logger,
		metrics:             opts.Metrics,
		mu:                  opts.IndexLock,
	}
	if s.mu == nil {
		s.mu = &sync.RWMutex{}
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.summaryMaxSentences <= 0 {
		s.summaryMaxSentences = 3
	}
	return s, nil
}

// Query runs the agent for one question. It takes no service lock; the
// agent's retrieval holds the index lock only around its search.
func (s *Service) Query(ctx context.Context, query string) (*agent.State, error) {
	return s.runner.Run(ctx, query)
}

// Health reports the vector count. A store error makes the service unhealthy.
func (s *Service) Health(ctx context.Context) (Health, error) {
	h := Health{Status: "healthy", ModelLoaded: true, Embedder: s.embedder.Name(), Model: s.modelName}
	n, err := s.store.Count(ctx)
	if err != nil {
		h.Status = "unhealthy"
		h.ModelLoaded = false
		return h, fmt.Errorf("vector store: %w", err)
	}
	h.VectorCount = n
	return h, nil
}

// IngestPaths ingests every supported file matched by the glob patterns.
func (s *Service) IngestPaths(ctx context.Context, patterns []string) ([]*IngestResult, error) {
	var files []string
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if extract.Supported(m) {
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, ErrNoDocuments
	}
	results := make([]*IngestResult, 0, len(files))
	for _, f := range files {
		res, err := s.IngestFile(ctx, f, "")
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// IngestFile extracts and ingests the file at path. An empty docID is derived from the path.
func (s *Service) IngestFile(ctx context.Context, path, docID string) (*IngestResult, error) {
	text, err := extract.File(path)
	if err != nil {
		return nil, err
	}
	if docID == "" {
		docID = DocIDFor(path)
	}
	return s.IngestText(ctx, docID, path, text)
}

// IngestUpload ingests an uploaded file body; name selects the decoder.
func (s *Service) IngestUpload(ctx context.Context, docID, name string, data []byte) (*IngestResult, error) {
	text, err := extract.Bytes(name, data)
	if err != nil {
		return nil, err
	}
	if docID == "" {
		docID = DocIDFor(name)
	}
	return s.IngestText(ctx, docID, name, text)
}

// IngestText chunks, embeds and stores text under docID, replacing any
// chunks previously ingested for the same document.
func (s *Service) IngestText(ctx context.Context, docID, path, text string) (*IngestResult, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, errors.New("doc_id is required")
	}
	chunks, err := s.chunker.Chunk(domain.Document{ID: docID, Path: path, Content: text})
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", docID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk %s: %w", docID, extract.ErrEmptyDocument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int
	if ce, ok := s.embedder.(domain.CorpusEmbedder); ok {
		stored, err = s.reindex(ctx, ce, docID, chunks)
	} else {
		stored, err = s.upsert(ctx, docID, chunks)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.IngestedChunks(stored)

	res := &IngestResult{DocID: docID, Status: "success", ChunksCreated: len(chunks), ChunksStored: stored}
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(text, s.summaryMaxSentences)
		if err != nil {
			s.log.Warn("summary failed", "doc_id", docID, "err", err)
		}
		res.Summary = summary
	}
	s.log.Info("document ingested", "doc_id", docID, "chunks", len(chunks), "stored", stored)
	return res, nil
}

// reindex refits a corpus embedder on every known chunk and rebuilds the store,
// since all existing vectors change with the vocabulary.
func (s *Service) reindex(ctx context.Context, ce domain.CorpusEmbedder, docID string, chunks []domain.Chunk) (int, error) {
	corpus := make([]domain.Chunk, 0, len(s.corpus)+len(chunks))
	for _, c := range s.corpus {
		if c.DocID != docID {
			corpus = append(corpus, c)
		}
	}
	corpus = append(corpus, chunks...)

	texts := make([]string, len(corpus))
	for i := range corpus {
		texts[i] = corpus[i].Text
	}
	if err := ce.Prepare(texts); err != nil {
		return 0, fmt.Errorf("prepare embedder: %w", err)
	}
	if err := s.store.Init(ctx, ce.Dimension()); err != nil {
		return 0, fmt.Errorf("init store: %w", err)
	}
	if err := s.store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	vectors, err := s.embedAll(ctx, corpus)
	if err != nil {
		return 0, err
	}
	if err := s.store.Upsert(ctx, corpus, vectors); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	s.corpus = corpus
	s.initialized = true
	return len(chunks), nil
}

// upsert embeds only the new chunks; remote embeddings do not depend on the corpus.
// The document's previous chunks are deleted first so a shorter version leaves
// none behind.
func (s *Service) upsert(ctx context.Context, docID string, chunks []domain.Chunk) (int, error) {
	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if !s.initialized {
		if err := s.store.Init(ctx, len(vectors[0])); err != nil {
			return 0, fmt.Errorf("init store: %w", err)
		}
		s.initialized = true
	}
	if err := s.store.DeleteDoc(ctx, docID); err != nil {
		return 0, fmt.Errorf("delete previous chunks of %s: %w", docID, err)
	}
	if err := s.store.Upsert(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return len(chunks), nil
}

func (s *Service) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))
	for i := range chunks {
		vec, err := s.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", chunks[i].ChunkID, chunks[i].DocID, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// DocIDFor derives a stable document id from a file name.
func DocIDFor(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return base + "-" + hashString(name)
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:4])
}
