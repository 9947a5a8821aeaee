package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusSucceeded ItemStatus = "succeeded"
	StatusFailed    ItemStatus = "failed"
	StatusSkipped   ItemStatus = "skipped"
)

// Result is the outcome of processing one document in a run.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewSucceeded creates a successful result.
func NewSucceeded(id string) Result { return Result{id: id, status: StatusSucceeded} }

// NewFailed creates a failed result carrying the reason.
func NewFailed(id string, err error) Result { return Result{id: id, status: StatusFailed, err: err} }

// NewSkipped creates a result for a document another run already processed.
func NewSkipped(id string) Result { return Result{id: id, status: StatusSkipped} }

// ID returns the document identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the failure reason, if any.
func (r Result) Err() error { return r.err }
