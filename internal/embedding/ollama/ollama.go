// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ollama/ollama/api"

	"docintel/internal/resilience"
)

// Embedder calls the Ollama /api/embed endpoint.
type Embedder struct {
	client *api.Client
	model  string

	mu        sync.Mutex
	dimension int
}

// New creates an embedder for model served at host (e.g. "http://localhost:11434").
func New(host, model string, httpClient *http.Client) (*Embedder, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Embedder{client: api.NewClient(u, httpClient), model: model}, nil
}

func (e *Embedder) Name() string { return "ollama:" + e.model }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) && !resilience.IsRetryableStatus(se.StatusCode) {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		return nil, resilience.Retryable(fmt.Errorf("ollama embed: %w", err))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama embed: no embedding returned")
	}
	raw := resp.Embeddings[0]
	v := make([]float64, len(raw))
	for i, x := range raw {
		v[i] = float64(x)
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(v)
	}
	e.mu.Unlock()
	return v, nil
}
