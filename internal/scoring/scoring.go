// Package scoring holds the pure heuristics that turn retrieval scores and
// generated text into the quality signals attached to an answer.
package scoring

import "strings"

// Confidence levels assigned by AnswerConfidence.
const (
	DeclinedConfidence = 0.3
	HighConfidence     = 0.8
	DefaultConfidence  = 0.5
)

// DefaultHighRetrievalScore is the mean retrieval score above which an answer
// that was not declined is considered well grounded.
const DefaultHighRetrievalScore = 0.6

// DefaultDeclinePhrases mark an answer in which the model says the context
// does not contain what was asked.
var DefaultDeclinePhrases = []string{"cannot find", "not in"}

// MeanScore returns the arithmetic mean of scores, or 0 for an empty slice.
func MeanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// ContainsAny reports whether text contains any of the phrases, ignoring case.
func ContainsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// AnswerConfidence applies the fixed confidence policy: a declined answer
// scores 0.3, otherwise a retrieval score strictly above highRetrieval scores
// 0.8, and anything else 0.5.
func AnswerConfidence(declined bool, retrievalScore, highRetrieval float64) float64 {
	switch {
	case declined:
		return DeclinedConfidence
	case retrievalScore > highRetrieval:
		return HighConfidence
	default:
		return DefaultConfidence
	}
}
