package chunker

import (
	"strings"

	"docintel/internal/domain"
	"docintel/internal/textutil"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := textutil.Sentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	cursor := 0
	for i := 0; i < len(sentences); {
		end := min(i+c.sentencesPerChunk, len(sentences))
		text := strings.Join(sentences[i:end], " ")
		start := strings.Index(document.Content[cursor:], sentences[i])
		if start >= 0 {
			start += cursor
			cursor = start
		} else {
			start = cursor
		}
		chunks = append(chunks, domain.Chunk{
			DocID:     document.ID,
			ChunkID:   len(chunks),
			Text:      text,
			CharStart: start,
			CharEnd:   start + len(text),
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}
