package analysis

import "time"

// Iteration is one versioned analysis attempt within a record's history.
// Immutable once committed: iterations are only ever appended, never edited
// in place.
type Iteration struct {
	Number       int       `json:"number"`
	CreatedAt    time.Time `json:"createdAt"`
	Metadata     Metadata  `json:"metadata"`
	Result       Result    `json:"result"`
	UserFeedback string    `json:"userFeedback,omitempty"`
}

// History is the persisted iteration document for one record: the ordered
// attempts plus the current pointer. Current is the 1-based number of the
// newest successfully committed iteration, 0 when nothing has been committed.
type History struct {
	Iterations []Iteration `json:"iterations"`
	Current    int         `json:"currentIteration"`
}

// Log is the append-only iteration history for a single record. It owns the
// iteration-number counter: callers never choose numbers, Append assigns the
// next one so the sequence stays contiguous 1..N. Serialization of concurrent
// appends is the Gate's job; a Log value is operated on inside the record's
// critical section only.
type Log struct {
	h History
}

// NewLog wraps a decoded history document.
func NewLog(h History) *Log {
	return &Log{h: h}
}

// Len returns the number of committed iterations.
func (l *Log) Len() int {
	return len(l.h.Iterations)
}

// Append commits a new iteration with the given result and metadata snapshot
// and advances the current pointer. The first iteration must be Full and
// every later one Brief: predictions are generated exactly once per record.
func (l *Log) Append(result Result, metadata Metadata, feedback string) (Iteration, error) {
	if err := result.Validate(); err != nil {
		return Iteration{}, &CommitError{Err: err}
	}

	next := len(l.h.Iterations) + 1
	if next == 1 && result.Kind != ResultFull {
		return Iteration{}, &CommitError{Err: errFirstMustBeFull}
	}
	if next > 1 && result.Kind == ResultFull {
		return Iteration{}, &CommitError{Err: errFullAlreadyCommitted}
	}

	iter := Iteration{
		Number:       next,
		CreatedAt:    time.Now().UTC(),
		Metadata:     metadata,
		Result:       result,
		UserFeedback: feedback,
	}
	l.h.Iterations = append(l.h.Iterations, iter)
	l.h.Current = next
	return iter, nil
}

// Current returns the newest committed iteration.
func (l *Log) Current() (Iteration, bool) {
	if l.h.Current < 1 || l.h.Current > len(l.h.Iterations) {
		return Iteration{}, false
	}
	return l.h.Iterations[l.h.Current-1], true
}

// History returns up to limit committed iterations, most recent first.
// The returned slice is a fresh copy; callers can range over it repeatedly
// without observing later appends.
func (l *Log) History(limit int) []Iteration {
	n := len(l.h.Iterations)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Iteration, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.h.Iterations[i])
	}
	return out
}

// Snapshot returns a deep copy of the history document for persistence or
// read-side consumption.
func (l *Log) Snapshot() History {
	iters := make([]Iteration, len(l.h.Iterations))
	copy(iters, l.h.Iterations)
	return History{Iterations: iters, Current: l.h.Current}
}

var (
	errFirstMustBeFull      = &invariantError{"first iteration must carry a full result"}
	errFullAlreadyCommitted = &invariantError{"full result already committed at iteration 1"}
)

type invariantError struct{ msg string }

func (e *invariantError) Error() string { return e.msg }
