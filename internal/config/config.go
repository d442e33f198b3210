package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

// OllamaEmbedderConfig holds configuration for the Ollama embedder.
type OllamaEmbedderConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type" validate:"oneof=tfidf openai ollama"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Ollama *OllamaEmbedderConfig `yaml:"ollama,omitempty"`

	// TFIDFMaxTerms caps the tfidf vocabulary; zero keeps every term.
	TFIDFMaxTerms int `yaml:"tfidf_max_terms,omitempty" validate:"gte=0"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" validate:"oneof=window sentence"`
	WindowSize        int    `yaml:"window_size" validate:"gte=0"`
	Overlap           int    `yaml:"overlap" validate:"gte=0"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" validate:"gte=0"`
	OverlapSentences  int    `yaml:"overlap_sentences" validate:"gte=0"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" validate:"oneof=memory qdrant sqlite"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SQLiteConfig points at the sqlite database file backing the vector store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" validate:"oneof=frequency"`
	MaxSentences int    `yaml:"max_sentences" validate:"gte=0"`
}

// LLMConfig selects the text-completion backend.
type LLMConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=openai anthropic ollama"`
	Model     string `yaml:"model" validate:"required"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens" validate:"gte=0"`
}

// AgentConfig carries the orchestrator's policy values.
type AgentConfig struct {
	RetrievalThreshold  float64 `yaml:"retrieval_threshold" validate:"gte=0,lte=1"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	HighRetrievalScore  float64 `yaml:"high_retrieval_score" validate:"gte=0,lte=1"`
	TopK                int     `yaml:"top_k" validate:"gte=1,lte=100"`
	ContextChunks       int     `yaml:"context_chunks" validate:"gte=1,lte=20"`
	AnswerTemperature   float64 `yaml:"answer_temperature" validate:"gte=0,lte=2"`
}

// ResilienceConfig bounds every external call with a deadline and retries.
type ResilienceConfig struct {
	TimeoutSecs      int `yaml:"timeout_secs" validate:"gte=0"`
	MaxRetries       int `yaml:"max_retries" validate:"gte=0,lte=10"`
	BackoffMillis    int `yaml:"backoff_millis" validate:"gte=0"`
	MaxBackoffMillis int `yaml:"max_backoff_millis" validate:"gte=0"`
}

// Timeout returns the per-call deadline.
func (r ResilienceConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// Backoff returns the initial retry delay.
func (r ResilienceConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMillis) * time.Millisecond
}

// MaxBackoff returns the cap on a single retry delay.
func (r ResilienceConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMillis) * time.Millisecond
}

// RedisConfig contains connection details for the redis embedding cache.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
}

// CacheConfig selects the query embedding cache.
type CacheConfig struct {
	Type    string       `yaml:"type" validate:"oneof=none memory redis"`
	TTLSecs int          `yaml:"ttl_secs" validate:"gte=0"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	LLM         LLMConfig         `yaml:"llm"`
	Agent       AgentConfig       `yaml:"agent"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-section constraints.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Embedder.Type == "tfidf" && c.VectorStore.Type != "memory" {
		return errors.New("invalid config: tfidf embedder needs the memory vector store, its vocabulary is not persisted")
	}
	if c.Chunker.Type == "window" && c.Chunker.Overlap >= c.Chunker.WindowSize {
		return errors.New("invalid config: chunker overlap must be smaller than window_size")
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return errors.New("invalid config: qdrant url missing")
	}
	if c.Cache.Type == "redis" && (c.Cache.Redis == nil || c.Cache.Redis.Addr == "") {
		return errors.New("invalid config: redis addr missing")
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docintel/config.yaml.
// If neither exists, it writes defaults to ~/.config/docintel/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docintel", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.Host == "" {
			cfg.Embedder.Ollama.Host = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "all-minilm"
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.WindowSize == 0 {
		cfg.Chunker.WindowSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "doc-intelligence"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "sqlite" {
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = "docintel.db"
		}
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GROQ_API_KEY"
		}
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		case "ollama":
			cfg.LLM.Model = "llama3.1:8b"
		default:
			cfg.LLM.Model = "llama-3.1-8b-instant"
		}
	}
	if cfg.LLM.APIKeyEnv == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
		case "openai":
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	if cfg.Agent.RetrievalThreshold == 0 {
		cfg.Agent.RetrievalThreshold = 0.4
	}
	if cfg.Agent.ConfidenceThreshold == 0 {
		cfg.Agent.ConfidenceThreshold = 0.4
	}
	if cfg.Agent.HighRetrievalScore == 0 {
		cfg.Agent.HighRetrievalScore = 0.6
	}
	if cfg.Agent.TopK == 0 {
		cfg.Agent.TopK = 10
	}
	if cfg.Agent.ContextChunks == 0 {
		cfg.Agent.ContextChunks = 5
	}
	if cfg.Agent.AnswerTemperature == 0 {
		cfg.Agent.AnswerTemperature = 0.3
	}

	if cfg.Resilience.TimeoutSecs == 0 {
		// Section absent: enable retries too.
		cfg.Resilience.TimeoutSecs = 60
		if cfg.Resilience.MaxRetries == 0 {
			cfg.Resilience.MaxRetries = 2
		}
	}
	if cfg.Resilience.BackoffMillis == 0 {
		cfg.Resilience.BackoffMillis = 200
	}
	if cfg.Resilience.MaxBackoffMillis == 0 {
		cfg.Resilience.MaxBackoffMillis = 5000
	}

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = 3600
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
