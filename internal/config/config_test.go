package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "window", cfg.Chunker.Type)
	assert.Equal(t, 1000, cfg.Chunker.WindowSize)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "GROQ_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, 0.4, cfg.Agent.RetrievalThreshold)
	assert.Equal(t, 0.4, cfg.Agent.ConfidenceThreshold)
	assert.Equal(t, 0.6, cfg.Agent.HighRetrievalScore)
	assert.Equal(t, 10, cfg.Agent.TopK)
	assert.Equal(t, 5, cfg.Agent.ContextChunks)
	assert.Equal(t, 0.3, cfg.Agent.AnswerTemperature)
	assert.Equal(t, 2, cfg.Resilience.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Resilience.Timeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_AppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
embedder:
  type: openai
vector_store:
  type: sqlite
llm:
  provider: anthropic
agent:
  top_k: 8
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	require.NotNil(t, cfg.VectorStore.SQLite)
	assert.Equal(t, "docintel.db", cfg.VectorStore.SQLite.Path)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Agent.TopK)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown embedder", yaml: "embedder:\n  type: bert\n"},
		{name: "threshold out of range", yaml: "agent:\n  retrieval_threshold: 1.5\n"},
		{name: "tfidf with persistent store", yaml: "vector_store:\n  type: sqlite\n"},
		{name: "overlap not below window", yaml: "chunker:\n  window_size: 100\n  overlap: 100\n"},
		{name: "qdrant without url", yaml: "embedder:\n  type: ollama\nvector_store:\n  type: qdrant\n"},
		{name: "redis without addr", yaml: "cache:\n  type: redis\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Agent.TopK = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
