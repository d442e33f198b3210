package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintel/internal/agent"
	"docintel/internal/extract"
	"docintel/internal/service"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeBackend struct {
	state     *agent.State
	queryErr  error
	ingestErr error
	health    service.Health
	healthErr error

	gotDocID, gotName string
	gotData           []byte
}

func (f *fakeBackend) Query(_ context.Context, q string) (*agent.State, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	s := *f.state
	s.Query = q
	return &s, nil
}

func (f *fakeBackend) IngestUpload(_ context.Context, docID, name string, data []byte) (*service.IngestResult, error) {
	f.gotDocID, f.gotName, f.gotData = docID, name, data
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &service.IngestResult{DocID: docID, Status: "success", ChunksCreated: 3, ChunksStored: 3}, nil
}

func (f *fakeBackend) Health(context.Context) (service.Health, error) {
	return f.health, f.healthErr
}

func answeredState() *agent.State {
	chunks := make([]agent.RetrievedChunk, 7)
	for i := range chunks {
		chunks[i] = agent.RetrievedChunk{Text: strings.Repeat("x", 300), Score: 0.9, DocID: "10k", ChunkID: i}
	}
	return &agent.State{
		Answer:           "Revenue was $96.8B [Source 1].",
		AnswerConfidence: 0.8,
		RetrievalScore:   0.9,
		StepCount:        4,
		RetrievedChunks:  chunks,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQuery_Success(t *testing.T) {
	s := New(&fakeBackend{state: answeredState()}, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/query", `{"query":"What was revenue?","top_k":3}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "What was revenue?", resp.Query)
	assert.Equal(t, 0.8, resp.Confidence)
	assert.Equal(t, 4, resp.StepsTaken)
	require.Len(t, resp.Sources, 3)
	assert.Len(t, resp.Sources[0].TextPreview, 200)
	assert.Equal(t, 2, resp.Sources[2].ChunkID)
}

func TestQuery_DefaultTopK(t *testing.T) {
	s := New(&fakeBackend{state: answeredState()}, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/query", `{"query":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Sources, 5)
}

func TestQuery_Validation(t *testing.T) {
	s := New(&fakeBackend{state: answeredState()}, nil, nil)
	tests := []struct {
		name string
		body string
	}{
		{name: "missing query", body: `{}`},
		{name: "empty query", body: `{"query":""}`},
		{name: "too long", body: `{"query":"` + strings.Repeat("a", 501) + `"}`},
		{name: "top_k too large", body: `{"query":"q","top_k":21}`},
		{name: "top_k zero", body: `{"query":"q","top_k":0}`},
		{name: "bad json", body: `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestQuery_RunErrorIs500(t *testing.T) {
	runErr := &agent.StageError{Stage: agent.StageRetrieve, Err: agent.ErrMalformedMetadata}
	s := New(&fakeBackend{queryErr: runErr}, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Query failed")

	s = New(&fakeBackend{queryErr: agent.ErrEmptyQuery}, nil, nil)
	w = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/query", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartUpload(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIngest(t *testing.T) {
	b := &fakeBackend{}
	s := New(b, nil, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, multipartUpload(t, "/api/v1/ingest?doc_id=tesla-10k", "file", "10k.pdf", []byte("%PDF")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tesla-10k", b.gotDocID)
	assert.Equal(t, "10k.pdf", b.gotName)
	assert.Equal(t, []byte("%PDF"), b.gotData)

	var res service.IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 3, res.ChunksStored)
	assert.Equal(t, "success", res.Status)
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  func(t *testing.T) *http.Request
		err  error
		want int
	}{
		{name: "missing doc_id", want: http.StatusBadRequest, req: func(t *testing.T) *http.Request {
			return multipartUpload(t, "/api/v1/ingest", "file", "a.pdf", []byte("x"))
		}},
		{name: "missing file", want: http.StatusBadRequest, req: func(t *testing.T) *http.Request {
			return multipartUpload(t, "/api/v1/ingest?doc_id=a", "", "", nil)
		}},
		{name: "unsupported extension", want: http.StatusBadRequest, req: func(t *testing.T) *http.Request {
			return multipartUpload(t, "/api/v1/ingest?doc_id=a", "file", "a.docx", []byte("x"))
		}},
		{name: "empty document", want: http.StatusBadRequest, err: extract.ErrEmptyDocument, req: func(t *testing.T) *http.Request {
			return multipartUpload(t, "/api/v1/ingest?doc_id=a", "file", "a.txt", []byte(" "))
		}},
		{name: "store failure", want: http.StatusInternalServerError, err: errors.New("qdrant down"), req: func(t *testing.T) *http.Request {
			return multipartUpload(t, "/api/v1/ingest?doc_id=a", "file", "a.txt", []byte("text"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeBackend{ingestErr: tt.err}, nil, nil)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, tt.req(t))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	s := New(&fakeBackend{health: service.Health{Status: "healthy", VectorCount: 42, ModelLoaded: true}}, nil, nil)
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","vector_count":42,"model_loaded":true,"embedder":""}`, w.Body.String())

	s = New(&fakeBackend{health: service.Health{Status: "unhealthy"}, healthErr: errors.New("down")}, nil, nil)
	w = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
}

func TestRootMetricsAndCORS(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "docintel_test_total", Help: "t"}))
	s := New(&fakeBackend{}, nil, reg)

	w := doJSON(t, s.Handler(), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"`+Version+`"`)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docintel_test_total")

	w = doJSON(t, s.Handler(), http.MethodOptions, "/api/v1/query", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(&fakeBackend{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()
	require.NoError(t, <-done)
}
