package agent

import "fmt"

// Stage enumerates the nodes of the agent graph.
type Stage int

const (
	StageClassify Stage = iota
	StageRetrieve
	StageAnswer
	StageVerify
	StageFallback
	StageDone
)

var stageNames = [...]string{"classify", "retrieve", "answer", "verify", "fallback", "done"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Policy holds the tunable thresholds and sizes of a run.
type Policy struct {
	// RetrievalThreshold: a mean retrieval score strictly below it falls back.
	RetrievalThreshold float64
	// ConfidenceThreshold: an answer confidence strictly below it falls back.
	ConfidenceThreshold float64
	// HighRetrievalScore: a retrieval score strictly above it earns high confidence.
	HighRetrievalScore float64
	TopK               int
	ContextChunks      int
	AnswerTemperature  float64
	MaxTokens          int
}

// DefaultPolicy returns the 0.4 retrieval and confidence thresholds and the
// stock retrieval sizes.
func DefaultPolicy() Policy {
	return Policy{
		RetrievalThreshold:  0.4,
		ConfidenceThreshold: 0.4,
		HighRetrievalScore:  0.6,
		TopK:                10,
		ContextChunks:       5,
		AnswerTemperature:   0.3,
	}
}

// Guard decides whether a transition applies. A nil Guard always applies.
type Guard func(s *State, p Policy) bool

// Transition is one edge of the graph. Reason is set on edges into Fallback.
type Transition struct {
	From   Stage
	To     Stage
	When   Guard
	Reason string
}

// Graph is an ordered transition table; the first edge whose guard holds wins.
type Graph struct {
	edges map[Stage][]Transition
}

// NewGraph builds a graph; edges leaving the same stage keep their given order.
func NewGraph(transitions ...Transition) *Graph {
	g := &Graph{edges: make(map[Stage][]Transition)}
	for _, t := range transitions {
		g.edges[t.From] = append(g.edges[t.From], t)
	}
	return g
}

// Fallback reasons.
const (
	ReasonLowRetrieval  = "low_retrieval"
	ReasonHallucination = "hallucination"
	ReasonLowConfidence = "low_confidence"
)

func lowRetrieval(s *State, p Policy) bool  { return s.RetrievalScore < p.RetrievalThreshold }
func hallucinated(s *State, _ Policy) bool  { return s.HasHallucination }
func lowConfidence(s *State, p Policy) bool { return s.AnswerConfidence < p.ConfidenceThreshold }

// DefaultGraph wires classify → retrieve → answer → verify → done, with
// short-circuits to fallback after retrieve and after verify.
func DefaultGraph() *Graph {
	return NewGraph(
		Transition{From: StageClassify, To: StageRetrieve},
		Transition{From: StageRetrieve, To: StageFallback, When: lowRetrieval, Reason: ReasonLowRetrieval},
		Transition{From: StageRetrieve, To: StageAnswer},
		Transition{From: StageAnswer, To: StageVerify},
		Transition{From: StageVerify, To: StageFallback, When: hallucinated, Reason: ReasonHallucination},
		Transition{From: StageVerify, To: StageFallback, When: lowConfidence, Reason: ReasonLowConfidence},
		Transition{From: StageVerify, To: StageDone},
		Transition{From: StageFallback, To: StageDone},
	)
}

// Next picks the edge leaving from for the current state.
func (g *Graph) Next(from Stage, s *State, p Policy) (Transition, error) {
	for _, t := range g.edges[from] {
		if t.When == nil || t.When(s, p) {
			return t, nil
		}
	}
	return Transition{}, fmt.Errorf("%w from %s", ErrNoTransition, from)
}
