package agent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"docintel/internal/domain"
	"docintel/internal/logger"
	"docintel/internal/scoring"
)

const classifyMaxTokens = 16

func (a *Agent) complete(ctx context.Context, stage Stage, prompt string, temperature float64, maxTokens int) (string, error) {
	if a.tokens != nil {
		a.metrics.PromptTokens(stage.String(), a.tokens.Count(prompt))
	}
	out, err := a.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: complete: %w", ErrExternalCall, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: complete: %w", ErrExternalCall, ErrEmptyResponse)
	}
	return out, nil
}

// classify asks the model whether the query needs document search. The
// decision is recorded only; every query is answered from documents.
func (a *Agent) classify(ctx context.Context, s *State, log logger.Logger) error {
	resp, err := a.complete(ctx, StageClassify, classifyPrompt(s.Query), 0, classifyMaxTokens)
	if err != nil {
		return err
	}
	s.Classification = parseRoute(resp)
	s.step(StageClassify)
	log.Debug("query classified", "stage", StageClassify, "decision", s.Classification)
	return nil
}

func (a *Agent) retrieve(ctx context.Context, s *State, log logger.Logger) error {
	matches, err := a.search(ctx, s.Query)
	if err != nil {
		return err
	}

	chunks := make([]RetrievedChunk, 0, len(matches))
	scores := make([]float64, 0, len(matches))
	for i, m := range matches {
		c, err := chunkFromMatch(m)
		if err != nil {
			return fmt.Errorf("match %d (%s): %w", i, m.ID, err)
		}
		chunks = append(chunks, c)
		scores = append(scores, m.Score)
	}
	s.RetrievedChunks = chunks
	s.RetrievalScore = scoring.MeanScore(scores)
	s.step(StageRetrieve)

	a.metrics.RetrievalScore(s.RetrievalScore)
	log.Info("chunks retrieved", "stage", StageRetrieve, "count", len(chunks), "retrieval_score", s.RetrievalScore)
	return nil
}

func (a *Agent) answer(ctx context.Context, s *State, log logger.Logger) error {
	prompt := answerPrompt(s.Query, firstN(s.RetrievedChunks, a.policy.ContextChunks))
	resp, err := a.complete(ctx, StageAnswer, prompt, a.policy.AnswerTemperature, a.policy.MaxTokens)
	if err != nil {
		return err
	}
	declined := a.judge.Declined(resp)
	s.Answer = resp
	s.AnswerConfidence = scoring.AnswerConfidence(declined, s.RetrievalScore, a.policy.HighRetrievalScore)
	s.step(StageAnswer)
	log.Info("answer generated", "stage", StageAnswer, "confidence", s.AnswerConfidence, "declined", declined)
	return nil
}

func (a *Agent) verify(ctx context.Context, s *State, log logger.Logger) error {
	prompt := verifyPrompt(s.Answer, firstN(s.RetrievedChunks, a.policy.ContextChunks))
	resp, err := a.complete(ctx, StageVerify, prompt, 0, a.policy.MaxTokens)
	if err != nil {
		return err
	}
	s.HasHallucination = a.verdict.Hallucinated(resp)
	s.VerificationNotes = resp
	s.step(StageVerify)
	log.Info("answer verified", "stage", StageVerify, "hallucination", s.HasHallucination)
	return nil
}

// fallback replaces the answer and leaves every quality signal as it was.
func (a *Agent) fallback(s *State, log logger.Logger) {
	s.Answer = FallbackAnswer(s.Query, s.RetrievalScore, s.AnswerConfidence)
	s.step(StageFallback)
	log.Info("fallback answer returned", "stage", StageFallback)
}

func (a *Agent) search(ctx context.Context, query string) ([]domain.Match, error) {
	if a.retrievalLock != nil {
		a.retrievalLock.Lock()
		defer a.retrievalLock.Unlock()
	}
	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrExternalCall, err)
	}
	matches, err := a.store.Search(ctx, domain.SearchRequest{
		Vector:          vec,
		TopK:            a.policy.TopK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrExternalCall, err)
	}
	return matches, nil
}

func chunkFromMatch(m domain.Match) (RetrievedChunk, error) {
	text, ok := m.Metadata[domain.MetaText].(string)
	if !ok {
		return RetrievedChunk{}, fmt.Errorf("%w: missing %q", ErrMalformedMetadata, domain.MetaText)
	}
	docID, ok := m.Metadata[domain.MetaDocID].(string)
	if !ok {
		return RetrievedChunk{}, fmt.Errorf("%w: missing %q", ErrMalformedMetadata, domain.MetaDocID)
	}
	chunkID, err := intField(m.Metadata, domain.MetaChunkID)
	if err != nil {
		return RetrievedChunk{}, err
	}
	return RetrievedChunk{Text: text, Score: m.Score, DocID: docID, ChunkID: chunkID}, nil
}

// intField reads an integral metadata value. JSON-decoded payloads carry numbers as float64.
func intField(md map[string]any, key string) (int, error) {
	switch v := md[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int(v), nil
		}
		return 0, fmt.Errorf("%w: %q is not an integer: %v", ErrMalformedMetadata, key, v)
	case nil:
		return 0, fmt.Errorf("%w: missing %q", ErrMalformedMetadata, key)
	default:
		return 0, fmt.Errorf("%w: %q has type %T", ErrMalformedMetadata, key, v)
	}
}
