package analysis

import "sync"

// Gate enforces at most one in-flight analysis per record. Acquire is a
// compare-and-swap: the losing caller gets a ConflictError immediately
// instead of queueing behind the winner.
type Gate struct {
	inflight sync.Map
}

// NewGate returns an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Acquire claims the record's analysis slot. Returns a ConflictError if an
// analysis is already in flight for the record.
func (g *Gate) Acquire(recordID string) error {
	if _, loaded := g.inflight.LoadOrStore(recordID, struct{}{}); loaded {
		return &ConflictError{RecordID: recordID}
	}
	return nil
}

// Release frees the record's analysis slot.
func (g *Gate) Release(recordID string) {
	g.inflight.Delete(recordID)
}

// Busy reports whether an analysis is currently in flight for the record.
func (g *Gate) Busy(recordID string) bool {
	_, ok := g.inflight.Load(recordID)
	return ok
}
