package llm

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt sizes for metrics.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter uses the cl100k encoding, which is close enough for the
// llama and claude families to size prompts.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text. It falls back to a rune-based estimate.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return utf8.RuneCountInString(text) / 4
	}
	n, err := tc.codec.Count(text)
	if err != nil {
		return utf8.RuneCountInString(text) / 4
	}
	return n
}
