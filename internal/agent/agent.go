// Package agent runs the verified question-answering graph: classify the query,
// retrieve evidence, answer from it, verify the answer against it, and fall back
// to an apology when retrieval or the answer is not trustworthy.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docintel/internal/domain"
	"docintel/internal/logger"
	"docintel/internal/metrics"
)

const tracerName = "docintel/internal/agent"

// TokenCounter sizes prompts for metrics.
type TokenCounter interface {
	Count(text string) int
}

// Deps are the collaborators of an Agent. Embedder, Store and Completer are required.
type Deps struct {
	Embedder  domain.Embedder
	Store     domain.VectorStore
	Completer domain.Completer

	Logger  logger.Logger
	Metrics *metrics.Metrics
	Tokens  TokenCounter
	Tracer  trace.Tracer

	// RetrievalLock, when set, is held around the query embedding and search
	// so they see one consistent index while it is rebuilt.
	RetrievalLock sync.Locker

	Judge   AnswerJudge
	Verdict VerdictParser
	Graph   *Graph
}

// Agent is safe for concurrent Run calls; every run owns its State.
type Agent struct {
	embedder  domain.Embedder
	store     domain.VectorStore
	completer domain.Completer

	log     logger.Logger
	metrics *metrics.Metrics
	tokens  TokenCounter
	tracer  trace.Tracer

	retrievalLock sync.Locker

	judge   AnswerJudge
	verdict VerdictParser
	graph   *Graph
	policy  Policy
}

func New(deps Deps, policy Policy) (*Agent, error) {
	if deps.Embedder == nil || deps.Store == nil || deps.Completer == nil {
		return nil, errors.New("agent: embedder, store and completer are required")
	}
	a := &Agent{
		embedder:      deps.Embedder,
		store:         deps.Store,
		completer:     deps.Completer,
		log:           deps.Logger,
		metrics:       deps.Metrics,
		tokens:        deps.Tokens,
		tracer:        deps.Tracer,
		retrievalLock: deps.RetrievalLock,
		judge:         deps.Judge,
		verdict:       deps.Verdict,
		graph:         deps.Graph,
		policy:        policy,
	}
	if a.log == nil {
		a.log = logger.NewNop()
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracerName)
	}
	if a.judge == nil {
		a.judge = PhraseJudge{}
	}
	if a.verdict == nil {
		a.verdict = FirstLineVerdict{}
	}
	if a.graph == nil {
		a.graph = DefaultGraph()
	}
	return a, nil
}

func (a *Agent) Policy() Policy { return a.policy }

// Run drives one query from Classify to Done. On failure it returns the
// partially filled state with Error set, together with a *StageError.
func (a *Agent) Run(ctx context.Context, query string) (*State, error) {
	s := NewState(query)
	if strings.TrimSpace(query) == "" {
		s.Error = ErrEmptyQuery.Error()
		return s, ErrEmptyQuery
	}

	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(attribute.String("run_id", s.RunID)))
	defer span.End()
	log := a.log.With("run_id", s.RunID)
	log.Info("agent run started", "query", query)

	visited := make(map[Stage]bool)
	stage := StageClassify
	for stage != StageDone {
		if visited[stage] {
			return a.fail(span, log, s, &StageError{Stage: stage, Err: ErrStageReentry})
		}
		visited[stage] = true

		if err := ctx.Err(); err != nil {
			return a.fail(span, log, s, &StageError{Stage: stage, Err: err})
		}
		if err := a.runStage(ctx, stage, s, log); err != nil {
			return a.fail(span, log, s, err)
		}

		next, err := a.graph.Next(stage, s, a.policy)
		if err != nil {
			return a.fail(span, log, s, &StageError{Stage: stage, Err: err})
		}
		if next.Reason != "" {
			a.metrics.Fallback(next.Reason)
			log.Warn("falling back", "after", stage, "reason", next.Reason,
				"retrieval_score", s.RetrievalScore, "confidence", s.AnswerConfidence,
				"hallucination", s.HasHallucination)
		}
		stage = next.To
	}

	outcome := "answered"
	if s.FellBack() {
		outcome = "fallback"
	}
	a.metrics.Run(outcome)
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("steps", s.StepCount),
	)
	log.Info("agent run finished", "outcome", outcome, "steps", s.StepCount,
		"retrieval_score", s.RetrievalScore, "confidence", s.AnswerConfidence)
	return s, nil
}

func (a *Agent) fail(span trace.Span, log logger.Logger, s *State, err error) (*State, error) {
	var se *StageError
	stage := "unknown"
	if errors.As(err, &se) {
		stage = se.Stage.String()
	}
	a.metrics.StageError(stage, errorKind(err))
	a.metrics.Run("error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error("agent run failed", "stage", stage, "err", err)
	s.Error = err.Error()
	return s, err
}

// runStage executes one stage inside its own span and timing.
func (a *Agent) runStage(ctx context.Context, stage Stage, s *State, log logger.Logger) error {
	ctx, span := a.tracer.Start(ctx, "agent."+stage.String())
	defer span.End()
	start := time.Now()
	defer func() { a.metrics.ObserveStage(stage.String(), time.Since(start)) }()

	var err error
	switch stage {
	case StageClassify:
		err = a.classify(ctx, s, log)
	case StageRetrieve:
		err = a.retrieve(ctx, s, log)
	case StageAnswer:
		err = a.answer(ctx, s, log)
	case StageVerify:
		err = a.verify(ctx, s, log)
	case StageFallback:
		a.fallback(s, log)
	default:
		err = ErrNoTransition
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
