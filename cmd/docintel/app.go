package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docintel/internal/agent"
	"docintel/internal/cache"
	"docintel/internal/chunker"
	"docintel/internal/config"
	"docintel/internal/domain"
	"docintel/internal/embedding/cached"
	"docintel/internal/embedding/ollama"
	"docintel/internal/embedding/openai"
	"docintel/internal/embedding/tfidf"
	"docintel/internal/llm"
	"docintel/internal/logger"
	"docintel/internal/metrics"
	"docintel/internal/resilience"
	"docintel/internal/service"
	"docintel/internal/summarizer"
	"docintel/internal/vectorstore/memory"
	"docintel/internal/vectorstore/qdrant"
	"docintel/internal/vectorstore/sqlite"
)

// app holds the assembled components of one process.
type app struct {
	cfg      *config.AppConfig
	log      logger.Logger
	registry *prometheus.Registry
	svc      *service.Service
	closers  []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	policy := resilience.Policy{
		Timeout:    cfg.Resilience.Timeout(),
		MaxRetries: cfg.Resilience.MaxRetries,
		Backoff:    cfg.Resilience.Backoff(),
		MaxBackoff: cfg.Resilience.MaxBackoff(),
		Jitter:     resilience.DefaultPolicy.Jitter,
	}

	emb, err := a.buildEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	emb = resilience.WrapEmbedder(emb, policy)

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	case "window", "":
		ch = chunker.NewWindowChunker(cfg.Chunker.WindowSize, cfg.Chunker.Overlap)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	st, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	store := resilience.WrapVectorStore(st, policy)

	completer, err := buildCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}
	tokens, err := llm.NewTokenCounter()
	if err != nil {
		log.Warn("token counter unavailable, falling back to estimates", "error", err)
	}

	var indexLock sync.RWMutex
	ag, err := agent.New(agent.Deps{
		Embedder:  emb,
		Store:     store,
		Completer: resilience.WrapCompleter(completer, policy),
		Logger:    log.With("component", "agent"),
		Metrics:   m,
		Tokens:    tokens,

		RetrievalLock: indexLock.RLocker(),
	}, agent.Policy{
		RetrievalThreshold:  cfg.Agent.RetrievalThreshold,
		ConfidenceThreshold: cfg.Agent.ConfidenceThreshold,
		HighRetrievalScore:  cfg.Agent.HighRetrievalScore,
		TopK:                cfg.Agent.TopK,
		ContextChunks:       cfg.Agent.ContextChunks,
		AnswerTemperature:   cfg.Agent.AnswerTemperature,
		MaxTokens:           cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	a.svc, err = service.New(service.Options{
		Chunker:             ch,
		Embedder:            emb,
		Store:               store,
		Summarizer:          summarizer.NewFrequencySummarizer(),
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		Runner:              ag,
		ModelName:           completer.Model(),
		Logger:              log.With("component", "service"),
		Metrics:             m,
		IndexLock:           &indexLock,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) buildEmbedder(ctx context.Context) (domain.Embedder, error) {
	cfg := a.cfg
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder(tfidf.WithMaxTerms(cfg.Embedder.TFIDFMaxTerms))
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			return nil, errors.New("ollama embedder config missing")
		}
		client, err := ollama.New(cfg.Embedder.Ollama.Host, cfg.Embedder.Ollama.Model, http.DefaultClient)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
	var store cache.Store
	switch cfg.Cache.Type {
	case "none", "":
		return emb, nil
	case "memory":
		mem, err := cache.NewMemory(0, ttl)
		if err != nil {
			return nil, err
		}
		store = mem
	case "redis":
		if cfg.Cache.Redis == nil {
			return nil, errors.New("redis cache config missing")
		}
		rdb, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: os.Getenv(cfg.Cache.Redis.PasswordEnv),
			DB:       cfg.Cache.Redis.DB,
			TTL:      ttl,
		})
		if err != nil {
			return nil, err
		}
		store = rdb
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.Cache.Type)
	}
	a.closers = append(a.closers, store)
	return cached.New(emb, store, a.log.With("component", "embedding-cache")), nil
}

func (a *app) buildStore(ctx context.Context) (domain.VectorStore, error) {
	cfg := a.cfg.VectorStore
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     os.Getenv(cfg.Qdrant.APIKeyEnv),
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func buildCompleter(cfg config.LLMConfig) (domain.Completer, error) {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case "openai", "":
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		return llm.NewOpenAI(key, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		return llm.NewAnthropic(key, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL, cfg.Model, http.DefaultClient)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
