package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrExternalCall marks a failed embedding, search or completion call.
	ErrExternalCall = errors.New("external call failed")
	// ErrMalformedMetadata marks a search match missing text, doc_id or chunk_id.
	ErrMalformedMetadata = errors.New("malformed retrieval metadata")
	// ErrStageReentry is returned if the graph routes back into a visited stage.
	ErrStageReentry = errors.New("stage re-entered")
	// ErrNoTransition is returned when no edge leaves a non-terminal stage.
	ErrNoTransition = errors.New("no transition")
	// ErrEmptyQuery rejects a blank query before any stage runs.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrEmptyResponse marks a completion that returned only whitespace.
	ErrEmptyResponse = errors.New("empty completion response")
)

// StageError carries the stage a run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// errorKind labels err for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMetadata):
		return "malformed_metadata"
	case errors.Is(err, ErrExternalCall):
		return "external"
	case errors.Is(err, ErrStageReentry):
		return "reentry"
	default:
		return "other"
	}
}
