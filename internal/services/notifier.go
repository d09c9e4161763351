package services

import (
	"fmt"
	"time"

	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/models"
)

// RecordSnapshot is the read-only view handed to pollers. Everything in it
// is a copy; holding a snapshot never blocks or observes a later commit.
type RecordSnapshot struct {
	ID               string               `json:"id"`
	OwnerID          uint                 `json:"ownerId"`
	ImageURL         string               `json:"imageUrl"`
	DishPosition     int                  `json:"dishPosition"`
	State            analysis.State       `json:"state"`
	LastError        string               `json:"lastError,omitempty"`
	Iterations       []analysis.Iteration `json:"iterations"`
	CurrentIteration int                  `json:"currentIteration"`
	StagedMetadata   *analysis.Metadata   `json:"stagedMetadata,omitempty"`
	TargetDate       *time.Time           `json:"targetDate,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
}

// Settled reports whether polling can stop: no analyzer invocation is
// running for the record.
func (s *RecordSnapshot) Settled() bool {
	return !s.State.InFlight()
}

// Notifier is the pure-read polling surface. It never takes the write gate;
// consistency comes from decoding a single atomically committed history
// document.
type Notifier struct {
	repo RecordRepository
}

func NewNotifier(repo RecordRepository) *Notifier {
	return &Notifier{repo: repo}
}

// Snapshot returns a consistent copy of the record's history, current
// pointer and orchestrator state. Safe under arbitrary concurrent calls.
func (n *Notifier) Snapshot(recordID string, ownerID uint) (*RecordSnapshot, error) {
	rec, err := n.repo.Get(recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrRecordNotFound
	}
	return SnapshotFromRecord(rec)
}

// History returns up to limit committed iterations, most recent first.
func (n *Notifier) History(recordID string, ownerID uint, limit int) ([]analysis.Iteration, error) {
	snap, err := n.Snapshot(recordID, ownerID)
	if err != nil {
		return nil, err
	}
	log := analysis.NewLog(analysis.History{Iterations: snap.Iterations, Current: snap.CurrentIteration})
	return log.History(limit), nil
}

// SnapshotFromRecord builds a snapshot view from an already-loaded record
// row, applying the legacy read adapter where needed.
func SnapshotFromRecord(rec *models.AnalysisRecord) (*RecordSnapshot, error) {
	history, err := analysis.DecodeHistory(rec.History, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	snap := &RecordSnapshot{
		ID:               rec.ID,
		OwnerID:          rec.OwnerID,
		ImageURL:         rec.ImageURL,
		DishPosition:     rec.DishPosition,
		State:            analysis.State(rec.Status),
		LastError:        rec.LastError,
		Iterations:       history.Iterations,
		CurrentIteration: history.Current,
		TargetDate:       rec.TargetDate,
		CreatedAt:        rec.CreatedAt,
	}

	if len(rec.StagedMetadata) > 0 && string(rec.StagedMetadata) != "null" {
		staged, err := analysis.DecodeMetadata(rec.StagedMetadata)
		if err != nil {
			return nil, err
		}
		snap.StagedMetadata = &staged
	}
	return snap, nil
}
