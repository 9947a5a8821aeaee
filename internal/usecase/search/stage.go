package search

import "fmt"

// Stage is a step of query execution.
type Stage string

// Execution stages in order. Failed is terminal for any stage error.
// Only the lookup and merging stages can fail; the others label debug log lines.
const (
	StageReceived      Stage = "received"
	StageLexicalLookup Stage = "lexical_lookup"
	StageVectorLookup  Stage = "vector_lookup"
	StageMerging       Stage = "merging"
	StageRanked        Stage = "ranked"
	StageReturned      Stage = "returned"
	StageFailed        Stage = "failed"
)

// StageError names the stage a query failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("search %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
