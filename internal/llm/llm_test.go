package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintel/internal/domain"
	"docintel/internal/resilience"
)

func TestOpenAI_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"llama-3.1-8b-instant",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  SEARCH \n"}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAI("k", srv.URL+"/openai/v1", "llama-3.1-8b-instant")
	out, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "route this", Temperature: 0, MaxTokens: 16})
	require.NoError(t, err)
	assert.Equal(t, "SEARCH", out)
	assert.Equal(t, "llama-3.1-8b-instant", c.Model())

	assert.Equal(t, "llama-3.1-8b-instant", got["model"])
	assert.EqualValues(t, 16, got["max_tokens"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestOpenAI_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryable: true},
		{name: "server error", status: http.StatusBadGateway, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
		{name: "unauthorized", status: http.StatusUnauthorized, retryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
			}))
			defer srv.Close()

			_, err := NewOpenAI("k", srv.URL, "m").Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, resilience.IsRetryable(err))
			assert.Equal(t, 1, calls, "sdk retries must be disabled")
		})
	}
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL, "m").Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAI_BlankContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  \n "}}]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL, "m").Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestAnthropic_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 1024, body["max_tokens"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"NO, "},{"type":"text","text":"all supported."}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewAnthropic("k", srv.URL, "claude-3-5-haiku-latest")
	out, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "verify"})
	require.NoError(t, err)
	assert.Equal(t, "NO, all supported.", out)
}

func TestAnthropic_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", srv.URL, "m").Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, resilience.IsRetryable(err))
}

func TestOllama_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		opts, _ := body["options"].(map[string]any)
		assert.EqualValues(t, 0.3, opts["temperature"])
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"model":"llama3.1:8b","message":{"role":"assistant","content":"Revenue grew [Source 1]."},"done":true}`+"\n")
	}))
	defer srv.Close()

	c, err := NewOllama(srv.URL, "llama3.1:8b", srv.Client())
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "q", Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew [Source 1].", out)
}

func TestOllama_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	c, err := NewOllama(srv.URL, "missing", srv.Client())
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Prompt: "q"})
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)
	assert.Equal(t, 2, tc.Count("hello world"))
	assert.Equal(t, 0, tc.Count(""))

	var nilCounter *TokenCounter
	assert.Equal(t, 2, nilCounter.Count("12345678"))
}
