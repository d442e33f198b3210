package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Run("answered")
	m.Run("fallback")
	m.Run("fallback")
	m.Fallback("low_retrieval")
	m.StageError("retrieve", "external")
	m.ObserveStage("answer", 120*time.Millisecond)
	m.RetrievalScore(0.72)
	m.PromptTokens("verify", 300)
	m.IngestedChunks(12)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("answered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("low_retrieval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageErrors.WithLabelValues("retrieve", "external")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ingestedChunks))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.retrievalScore))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Run("answered")
		m.Fallback("x")
		m.StageError("s", "k")
		m.ObserveStage("s", time.Second)
		m.RetrievalScore(1)
		m.PromptTokens("s", 1)
		m.IngestedChunks(1)
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
