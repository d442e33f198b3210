package agent

import "github.com/google/uuid"

// RetrievedChunk is one scored piece of evidence returned by the Retrieve stage.
type RetrievedChunk struct {
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	DocID   string  `json:"doc_id"`
	ChunkID int     `json:"chunk_id"`
}

// State is threaded through every stage of a run. A fresh State is created
// per query and never shared between runs.
type State struct {
	RunID string `json:"run_id"`
	Query string `json:"query"`

	// Classification is the router's decision. It is recorded but not routed on.
	Classification string `json:"classification,omitempty"`

	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	RetrievalScore  float64          `json:"retrieval_score"`

	Answer           string  `json:"answer"`
	AnswerConfidence float64 `json:"answer_confidence"`

	HasHallucination  bool   `json:"has_hallucination"`
	VerificationNotes string `json:"verification_notes,omitempty"`

	StepCount int     `json:"step_count"`
	Path      []Stage `json:"path"`
	Error     string  `json:"error,omitempty"`
}

// NewState returns the initial state for query.
func NewState(query string) *State {
	return &State{
		RunID:           uuid.NewString(),
		Query:           query,
		RetrievedChunks: []RetrievedChunk{},
	}
}

// FellBack reports whether the run ended with the fallback response.
func (s *State) FellBack() bool {
	for _, st := range s.Path {
		if st == StageFallback {
			return true
		}
	}
	return false
}

func (s *State) step(stage Stage) {
	s.StepCount++
	s.Path = append(s.Path, stage)
}
