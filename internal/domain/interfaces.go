package domain

import "context"

// Metadata keys stored alongside every indexed chunk.
const (
	MetaText      = "text"
	MetaDocID     = "doc_id"
	MetaChunkID   = "chunk_id"
	MetaCharStart = "char_start"
	MetaCharEnd   = "char_end"
)

// Document represents a single source file loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a bounded span of a document used as a retrieval unit.
type Chunk struct {
	DocID     string
	ChunkID   int
	Text      string
	CharStart int
	CharEnd   int
}

// Metadata returns the payload persisted with the chunk's vector.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{
		MetaText:      c.Text,
		MetaDocID:     c.DocID,
		MetaChunkID:   c.ChunkID,
		MetaCharStart: c.CharStart,
		MetaCharEnd:   c.CharEnd,
	}
}

// SearchRequest is a top-k similarity query against a VectorStore.
type SearchRequest struct {
	Vector          []float64
	TopK            int
	IncludeMetadata bool
}

// Match is one scored hit returned by a VectorStore, ranked descending by score.
// Metadata is nil unless the request asked for it.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Embedder converts free text into a numeric vector representation.
// Embed must be deterministic for identical text.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CorpusEmbedder is an Embedder that must see the whole corpus before embedding.
type CorpusEmbedder interface {
	Embedder
	Prepare(corpus []string) error
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorStore persists vectors and supports similarity search.
// Search returns an empty slice, not an error, when nothing matches.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, req SearchRequest) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	// DeleteDoc removes every chunk of docID. Unknown documents are not an error.
	DeleteDoc(ctx context.Context, docID string) error
}

// CompletionRequest is a single-prompt text completion call.
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer is a text-completion backend.
type Completer interface {
	Model() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
