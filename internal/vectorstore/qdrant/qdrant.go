package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docintel/internal/domain"
	"docintel/internal/resilience"
	"docintel/internal/vectorstore"
)

// pointNamespace seeds the deterministic UUIDs used as Qdrant point ids.
var pointNamespace = uuid.MustParse("6f1b7c1e-3f0a-4a53-9a55-0d3c6d2f8e11")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a chunk onto a stable UUID; Qdrant rejects arbitrary string ids.
func PointID(c domain.Chunk) string {
	return uuid.NewSHA1(pointNamespace, []byte(vectorstore.ChunkKey(c))).String()
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return vectorstore.ErrInvalidDimension
	}
	s.mu.Lock()
	s.dimension = dimension
	s.mu.Unlock()

	status, err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	return s.create(ctx, dimension)
}

func (s *Storage) create(ctx context.Context, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
	return err
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	s.mu.Lock()
	dim := s.dimension
	s.mu.Unlock()
	if err := vectorstore.CheckUpsert(dim, chunks, vectors); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":      PointID(chunks[i]),
			"vector":  vectors[i],
			"payload": chunks[i].Metadata(),
		}
	}
	body := map[string]any{"points": points}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        topK,
		"with_payload": req.IncludeMetadata,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := domain.Match{ID: fmt.Sprint(r.ID), Score: r.Score}
		if req.IncludeMetadata {
			m.Metadata = r.Payload
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// DeleteDoc deletes the points whose doc_id payload matches. A missing
// collection holds nothing to delete.
func (s *Storage) DeleteDoc(ctx context.Context, docID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": domain.MetaDocID, "match": map[string]any{"value": docID}},
			},
		},
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/delete?wait=true", body, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	return nil
}

// Clear drops the collection and recreates it empty when the dimension is known.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.mu.Lock()
	dim := s.dimension
	s.mu.Unlock()
	if dim == 0 {
		return nil
	}
	return s.create(ctx, dim)
}

// do sends a JSON request and decodes the response into out. It returns the
// HTTP status (0 when the request never completed).
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, resilience.Retryable(fmt.Errorf("qdrant %s %s: %w", method, url, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
		if resilience.IsRetryableStatus(resp.StatusCode) {
			err = resilience.Retryable(err)
		}
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
