package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGraph_Transitions(t *testing.T) {
	g := DefaultGraph()
	p := DefaultPolicy()
	tests := []struct {
		name       string
		from       Stage
		state      State
		wantTo     Stage
		wantReason string
	}{
		{name: "classify always retrieves", from: StageClassify, wantTo: StageRetrieve},
		{name: "retrieval below threshold", from: StageRetrieve, state: State{RetrievalScore: 0.39999}, wantTo: StageFallback, wantReason: ReasonLowRetrieval},
		{name: "retrieval at threshold", from: StageRetrieve, state: State{RetrievalScore: 0.4}, wantTo: StageAnswer},
		{name: "answer always verifies", from: StageAnswer, wantTo: StageVerify},
		{name: "confidence at threshold, clean", from: StageVerify, state: State{AnswerConfidence: 0.4}, wantTo: StageDone},
		{name: "confidence below threshold", from: StageVerify, state: State{AnswerConfidence: 0.39}, wantTo: StageFallback, wantReason: ReasonLowConfidence},
		{name: "hallucination despite confidence", from: StageVerify, state: State{AnswerConfidence: 0.9, HasHallucination: true}, wantTo: StageFallback, wantReason: ReasonHallucination},
		{name: "fallback ends", from: StageFallback, wantTo: StageDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.state
			got, err := g.Next(tt.from, &s, p)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTo, got.To)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestGraph_PolicyThresholdsAreConfigurable(t *testing.T) {
	p := DefaultPolicy()
	p.RetrievalThreshold = 0.2
	got, err := DefaultGraph().Next(StageRetrieve, &State{RetrievalScore: 0.3}, p)
	require.NoError(t, err)
	assert.Equal(t, StageAnswer, got.To)
}

func TestGraph_DoneHasNoEdges(t *testing.T) {
	_, err := DefaultGraph().Next(StageDone, &State{}, DefaultPolicy())
	require.ErrorIs(t, err, ErrNoTransition)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "classify", StageClassify.String())
	assert.Equal(t, "fallback", StageFallback.String())
	assert.Equal(t, "done", StageDone.String())
	assert.Equal(t, "stage(42)", Stage(42).String())

	raw, err := json.Marshal([]Stage{StageRetrieve, StageAnswer})
	require.NoError(t, err)
	assert.JSONEq(t, `["retrieve","answer"]`, string(raw))
}
