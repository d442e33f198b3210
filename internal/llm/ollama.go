package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"docintel/internal/domain"
)

// Ollama completes prompts against a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(host, model string, httpClient *http.Client) (*Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{client: api.NewClient(u, httpClient), model: model}, nil
}

func (c *Ollama) Model() string { return c.model }

func (c *Ollama) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	chat := &api.ChatRequest{
		Model:    c.model,
		Messages: []api.Message{{Role: "user", Content: req.Prompt}},
		Stream:   &stream,
		Options:  options,
	}

	var content strings.Builder
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var se api.StatusError
		status := 0
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		return "", classifyStatus("ollama", status, err)
	}
	out := strings.TrimSpace(content.String())
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
