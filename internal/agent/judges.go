package agent

import (
	"strings"

	"docintel/internal/scoring"
)

// AnswerJudge decides whether a generated answer declines to answer.
type AnswerJudge interface {
	Declined(answer string) bool
}

// VerdictParser reads the verifier's response.
type VerdictParser interface {
	Hallucinated(response string) bool
}

// PhraseJudge flags an answer as declined when it contains any phrase, case-insensitively.
type PhraseJudge struct {
	Phrases []string
}

func (j PhraseJudge) Declined(answer string) bool {
	phrases := j.Phrases
	if phrases == nil {
		phrases = scoring.DefaultDeclinePhrases
	}
	return scoring.ContainsAny(answer, phrases)
}

// FirstLineVerdict treats a response as a hallucination verdict when its first
// line contains YES in any case. Everything else, including NO and empty, is clean.
type FirstLineVerdict struct{}

func (FirstLineVerdict) Hallucinated(response string) bool {
	first, _, _ := strings.Cut(response, "\n")
	return strings.Contains(strings.ToUpper(first), "YES")
}

// Router decisions.
const (
	RouteSearch  = "SEARCH"
	RouteGeneral = "GENERAL"
	RouteUnknown = "UNKNOWN"
)

func parseRoute(response string) string {
	up := strings.ToUpper(response)
	switch {
	case strings.Contains(up, RouteSearch):
		return RouteSearch
	case strings.Contains(up, RouteGeneral):
		return RouteGeneral
	default:
		return RouteUnknown
	}
}
