// Package server exposes the question-answering service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docintel/internal/agent"
	"docintel/internal/extract"
	"docintel/internal/logger"
	"docintel/internal/service"
	"docintel/internal/textutil"
)

const (
	Version        = "1.0.0"
	maxUploadBytes = 32 << 20
	previewRunes   = 200
	defaultTopK    = 5
)

// Backend is the part of service.Service the API needs.
type Backend interface {
	Query(ctx context.Context, query string) (*agent.State, error)
	IngestUpload(ctx context.Context, docID, name string, data []byte) (*service.IngestResult, error)
	Health(ctx context.Context) (service.Health, error)
}

type Server struct {
	backend  Backend
	log      logger.Logger
	gatherer prometheus.Gatherer
	router   *gin.Engine
}

// New builds the router. A nil gatherer disables /metrics.
func New(backend Backend, log logger.Logger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{backend: backend, log: log, gatherer: gatherer}
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(s.log))
	router.Use(CORSMiddleware())

	router.GET("/", s.handleRoot)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	v1 := router.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.POST("/ingest", s.handleIngest)
	v1.GET("/health", s.handleHealth)
	s.router = router
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "address", fmt.Sprintf("http://%s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Debug("received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server shutdown completed")
	return nil
}

type queryRequest struct {
	Query string `json:"query" binding:"required,min=1,max=500"`
	TopK  *int   `json:"top_k" binding:"omitempty,min=1,max=20"`
}

type sourceResponse struct {
	DocID       string  `json:"doc_id"`
	ChunkID     int     `json:"chunk_id"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"text_preview"`
}

type queryResponse struct {
	Query            string           `json:"query"`
	Answer           string           `json:"answer"`
	Confidence       float64          `json:"confidence"`
	RetrievalScore   float64          `json:"retrieval_score"`
	StepsTaken       int              `json:"steps_taken"`
	HasHallucination bool             `json:"has_hallucination"`
	Sources          []sourceResponse `json:"sources"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "docintel",
		"version": Version,
		"endpoints": []string{
			"POST /api/v1/query",
			"POST /api/v1/ingest",
			"GET /api/v1/health",
		},
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}
	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	state, err := s.backend.Query(c.Request.Context(), req.Query)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, agent.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "Query failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, newQueryResponse(req.Query, state, topK))
}

func newQueryResponse(query string, st *agent.State, topK int) queryResponse {
	chunks := st.RetrievedChunks
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	sources := make([]sourceResponse, len(chunks))
	for i, ch := range chunks {
		sources[i] = sourceResponse{
			DocID:       ch.DocID,
			ChunkID:     ch.ChunkID,
			Score:       ch.Score,
			TextPreview: textutil.Truncate(ch.Text, previewRunes),
		}
	}
	return queryResponse{
		Query:            query,
		Answer:           st.Answer,
		Confidence:       st.AnswerConfidence,
		RetrievalScore:   st.RetrievalScore,
		StepsTaken:       st.StepCount,
		HasHallucination: st.HasHallucination,
		Sources:          sources,
	}
}

func (s *Server) handleIngest(c *gin.Context) {
	docID := c.Query("doc_id")
	if docID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "doc_id query parameter is required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "multipart field \"file\" is required"})
		return
	}
	if !extract.Supported(fh.Filename) {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "Only PDF, TXT and MD files supported"})
		return
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Detail: "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	res, err := s.backend.IngestUpload(c.Request.Context(), docID, fh.Filename, data)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, extract.ErrEmptyDocument) || errors.Is(err, extract.ErrUnsupportedType) {
			c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "Ingestion failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHealth(c *gin.Context) {
	h, err := s.backend.Health(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       h.Status,
			"vector_count": h.VectorCount,
			"model_loaded": h.ModelLoaded,
			"detail":       err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, h)
}
