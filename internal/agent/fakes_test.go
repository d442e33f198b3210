package agent

import (
	"context"
	"strings"
	"sync"

	"docintel/internal/domain"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float64{1, 0, 0}, nil
}

type fakeStore struct {
	matches []domain.Match
	err     error

	mu       sync.Mutex
	requests []domain.SearchRequest
}

func (f *fakeStore) Init(context.Context, int) error                           { return nil }
func (f *fakeStore) Upsert(context.Context, []domain.Chunk, [][]float64) error { return nil }
func (f *fakeStore) Count(context.Context) (int, error)                        { return len(f.matches), nil }
func (f *fakeStore) Clear(context.Context) error                               { return nil }
func (f *fakeStore) DeleteDoc(context.Context, string) error                   { return nil }

func (f *fakeStore) Search(_ context.Context, req domain.SearchRequest) ([]domain.Match, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

// scriptedCompleter answers each stage's prompt with a canned response.
type scriptedCompleter struct {
	route, answer, verdict string
	failOn                 Stage
	err                    error

	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	stage Stage
	req   domain.CompletionRequest
}

func newCompleter(answer, verdict string) *scriptedCompleter {
	return &scriptedCompleter{route: "SEARCH", answer: answer, verdict: verdict, failOn: StageDone}
}

func (c *scriptedCompleter) Model() string { return "scripted" }

func (c *scriptedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	stage := StageDone
	switch {
	case strings.HasPrefix(req.Prompt, "Analyze this query"):
		stage = StageClassify
	case strings.HasPrefix(req.Prompt, "You are a financial document analyst"):
		stage = StageAnswer
	case strings.HasPrefix(req.Prompt, "Compare the answer"):
		stage = StageVerify
	}
	c.mu.Lock()
	c.calls = append(c.calls, recordedCall{stage: stage, req: req})
	c.mu.Unlock()

	if stage == c.failOn {
		return "", c.err
	}
	switch stage {
	case StageClassify:
		return c.route, nil
	case StageAnswer:
		return c.answer, nil
	case StageVerify:
		return c.verdict, nil
	}
	return "", nil
}

func (c *scriptedCompleter) call(stage Stage) (domain.CompletionRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rc := range c.calls {
		if rc.stage == stage {
			return rc.req, true
		}
	}
	return domain.CompletionRequest{}, false
}

func (c *scriptedCompleter) stages() []Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stage, len(c.calls))
	for i, rc := range c.calls {
		out[i] = rc.stage
	}
	return out
}

// matchesWithScores builds well-formed matches the way a JSON-backed index returns them.
func matchesWithScores(scores ...float64) []domain.Match {
	out := make([]domain.Match, len(scores))
	for i, s := range scores {
		out[i] = domain.Match{
			ID:    "10k:" + string(rune('a'+i)),
			Score: s,
			Metadata: map[string]any{
				domain.MetaText:    "chunk text " + string(rune('A'+i)),
				domain.MetaDocID:   "10k",
				domain.MetaChunkID: float64(i),
			},
		}
	}
	return out
}
