package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintel/internal/domain"
)

var fastPolicy = Policy{Timeout: 50 * time.Millisecond, MaxRetries: 2, Backoff: time.Millisecond}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("503"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	boom := errors.New("still down")
	err := Do(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		return Retryable(boom)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("bad request")
	err := Do(context.Background(), fastPolicy, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_AttemptTimeoutIsRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledParentStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy, func(context.Context) error {
		calls++
		cancel()
		return Retryable(errors.New("flaky"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, IsRetryableStatus(429))
	assert.True(t, IsRetryableStatus(503))
	assert.False(t, IsRetryableStatus(400))
	assert.False(t, IsRetryableStatus(404))
}

type flakyCompleter struct{ fails int }

func (f *flakyCompleter) Model() string { return "flaky" }

func (f *flakyCompleter) Complete(context.Context, domain.CompletionRequest) (string, error) {
	if f.fails > 0 {
		f.fails--
		return "", Retryable(errors.New("rate limited"))
	}
	return "ok", nil
}

type corpusOnly struct{ prepared []string }

func (c *corpusOnly) Name() string                                     { return "c" }
func (c *corpusOnly) Dimension() int                                   { return 1 }
func (c *corpusOnly) Embed(context.Context, string) ([]float64, error) { return []float64{1}, nil }
func (c *corpusOnly) Prepare(corpus []string) error                    { c.prepared = corpus; return nil }

func TestWrapCompleter(t *testing.T) {
	c := WrapCompleter(&flakyCompleter{fails: 1}, fastPolicy)
	out, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "flaky", c.Model())
}

func TestWrapEmbedder_KeepsCorpusCapability(t *testing.T) {
	inner := &corpusOnly{}
	wrapped := WrapEmbedder(inner, fastPolicy)
	ce, ok := wrapped.(domain.CorpusEmbedder)
	require.True(t, ok)
	require.NoError(t, ce.Prepare([]string{"a"}))
	assert.Equal(t, []string{"a"}, inner.prepared)

	v, err := wrapped.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, v)
}
