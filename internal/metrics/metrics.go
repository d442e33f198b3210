// Package metrics records agent runs in Prometheus.
//
// All methods are safe on a nil *Metrics so callers can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec
	runs           *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	retrievalScore prometheus.Histogram
	promptTokens   *prometheus.HistogramVec
	ingestedChunks prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docintel_stage_duration_seconds",
				Help:    "Duration of agent stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docintel_stage_errors_total",
				Help: "Agent stages that failed, by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docintel_runs_total",
				Help: "Completed agent runs by outcome (answered, fallback, error)",
			},
			[]string{"outcome"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docintel_fallbacks_total",
				Help: "Fallback responses by the reason that triggered them",
			},
			[]string{"reason"},
		),
		retrievalScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docintel_retrieval_score",
			Help:    "Mean similarity score of retrieved chunks",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		promptTokens: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docintel_prompt_tokens",
				Help:    "Prompt size in tokens sent to the language model",
				Buckets: prometheus.ExponentialBuckets(16, 2, 10),
			},
			[]string{"stage"},
		),
		ingestedChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "docintel_ingested_chunks_total",
			Help: "Chunks stored in the vector index",
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) StageError(stage, kind string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) Run(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) RetrievalScore(score float64) {
	if m == nil {
		return
	}
	m.retrievalScore.Observe(score)
}

func (m *Metrics) PromptTokens(stage string, n int) {
	if m == nil {
		return
	}
	m.promptTokens.WithLabelValues(stage).Observe(float64(n))
}

func (m *Metrics) IngestedChunks(n int) {
	if m == nil {
		return
	}
	m.ingestedChunks.Add(float64(n))
}
