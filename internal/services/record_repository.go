package services

import (
	"errors"
	"time"

	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/models"
	"gorm.io/datatypes"
)

// ErrRecordNotFound is returned by repositories when no record matches.
var ErrRecordNotFound = errors.New("record not found")

// RecordRepository defines the data-access contract for analysis records.
// Services depend only on this interface; the gorm implementation backs
// production and the in-memory one backs tests.
type RecordRepository interface {
	Create(rec *models.AnalysisRecord) error
	Get(id string) (*models.AnalysisRecord, error)
	ListByDate(ownerID uint, date time.Time) ([]models.AnalysisRecord, error)
	CountByDate(ownerID uint, date time.Time) (int64, error)
	UpdateStatus(id string, status analysis.State, lastError string) error
	UpdateStaged(id string, staged datatypes.JSON, feedback string) error
	// CommitIteration persists a newly appended iteration as a single atomic
	// write of the history document, the staged-metadata baseline and the
	// orchestrator state. Readers never observe a partially written iteration.
	// The staged columns are reset to the committed baseline only when they
	// still hold the snapshot the iteration consumed (consumedStaged and
	// consumedFeedback); edits staged while the analysis was in flight are
	// kept for the next reanalyze.
	CommitIteration(id string, history datatypes.JSON, staged datatypes.JSON, consumedStaged datatypes.JSON, consumedFeedback string, status analysis.State) error
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.Add(24 * time.Hour)
}
