package batch

import (
	"slices"
	"strings"
	"sync"
)

// Failure is a failed document and its reason.
type Failure struct {
	ID     string
	Reason string
	Err    error
}

// Summary is an immutable snapshot of a tally.
type Summary struct {
	Succeeded []string
	Failed    []Failure
	Skipped   []string
	Canceled  bool
}

// Total returns the number of documents accounted for.
func (s Summary) Total() int { return len(s.Succeeded) + len(s.Failed) + len(s.Skipped) }

// Tally accumulates per-document results from concurrent workers.
// It is the only state shared between workers of a run.
type Tally struct {
	mu       sync.Mutex
	results  []Result
	canceled bool
}

// NewTally creates an empty tally.
func NewTally() *Tally { return &Tally{} }

// Record adds one result.
func (t *Tally) Record(r Result) {
	t.mu.Lock()
	t.results = append(t.results, r)
	t.mu.Unlock()
}

// Cancel marks the run as interrupted.
func (t *Tally) Cancel() {
	t.mu.Lock()
	t.canceled = true
	t.mu.Unlock()
}

// Summary returns a snapshot with every list sorted by document id.
func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	for _, r := range t.results {
		switch r.status {
		case StatusSucceeded:
			s.Succeeded = append(s.Succeeded, r.id)
		case StatusFailed:
			f := Failure{ID: r.id, Err: r.err}
			if r.err != nil {
				f.Reason = r.err.Error()
			}
			s.Failed = append(s.Failed, f)
		case StatusSkipped:
			s.Skipped = append(s.Skipped, r.id)
		}
	}
	slices.Sort(s.Succeeded)
	slices.Sort(s.Skipped)
	slices.SortFunc(s.Failed, func(a, b Failure) int { return strings.Compare(a.ID, b.ID) })
	s.Canceled = t.canceled
	return s
}

// Partition splits ids into consecutive batches of at most size elements.
func Partition(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
