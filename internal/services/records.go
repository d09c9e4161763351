package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/logger"
	"github.com/platewise/backend/internal/models"
)

// MaxDishesPerDate caps how many dish records can attach to one calendar day.
const MaxDishesPerDate = 5

// RecordService owns the analysis-record aggregate: creation, ownership
// checks, metadata staging and date listing. Analysis phases belong to the
// Orchestrator.
type RecordService struct {
	repo RecordRepository
}

func NewRecordService(repo RecordRepository) *RecordService {
	return &RecordService{repo: repo}
}

// CreateRecord registers a freshly uploaded dish image for the given date.
func (s *RecordService) CreateRecord(ownerID uint, imageKey, imageURL string, targetDate time.Time, position int) (*models.AnalysisRecord, error) {
	count, err := s.repo.CountByDate(ownerID, targetDate)
	if err != nil {
		return nil, err
	}
	if count >= MaxDishesPerDate {
		return nil, &analysis.ValidationError{
			Field:  "targetDate",
			Reason: fmt.Sprintf("at most %d dishes per date", MaxDishesPerDate),
		}
	}
	if position <= 0 {
		position = int(count) + 1
	}

	date := targetDate
	rec := &models.AnalysisRecord{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		ImageKey:     imageKey,
		ImageURL:     imageURL,
		DishPosition: position,
		Status:       string(analysis.StateIdle),
		TargetDate:   &date,
	}
	if err := s.repo.Create(rec); err != nil {
		return nil, err
	}
	logger.WithRecord(rec.ID).WithField("owner_id", ownerID).Info("Analysis record created")
	return rec, nil
}

// GetOwned loads a record and enforces ownership. Records belonging to
// someone else are indistinguishable from missing ones.
func (s *RecordService) GetOwned(recordID string, ownerID uint) (*models.AnalysisRecord, error) {
	rec, err := s.repo.Get(recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// ListByDate returns the caller's records for one calendar day, ordered by
// dish position.
func (s *RecordService) ListByDate(ownerID uint, date time.Time) ([]models.AnalysisRecord, error) {
	return s.repo.ListByDate(ownerID, date)
}

// StageMetadata validates and merges a partial metadata correction into the
// record's staging area. Staging only touches the uncommitted area, so it is
// allowed while an analysis is in flight; the edits take effect on the next
// reanalyze. The dirty flag survives until an iteration built from the
// staged snapshot is committed.
func (s *RecordService) StageMetadata(recordID string, ownerID uint, update analysis.MetadataUpdate, feedback string) (analysis.Metadata, error) {
	rec, err := s.GetOwned(recordID, ownerID)
	if err != nil {
		return analysis.Metadata{}, err
	}

	baseline, err := s.stagingBaseline(rec)
	if err != nil {
		return analysis.Metadata{}, err
	}

	editor := analysis.NewEditor(baseline)
	staged, err := editor.Stage(update)
	if err != nil {
		return analysis.Metadata{}, err
	}

	raw, err := analysis.EncodeMetadata(staged)
	if err != nil {
		return analysis.Metadata{}, fmt.Errorf("failed to encode staged metadata: %w", err)
	}
	if feedback == "" {
		feedback = rec.StagedFeedback
	}
	if err := s.repo.UpdateStaged(recordID, raw, feedback); err != nil {
		return analysis.Metadata{}, err
	}

	logger.WithRecord(recordID).WithField("dirty", staged.ModifiedSincePrevious).Info("Metadata staged")
	return staged, nil
}

// stagingBaseline picks what an edit merges into: the existing staged
// snapshot if present, else the current iteration's committed metadata.
func (s *RecordService) stagingBaseline(rec *models.AnalysisRecord) (analysis.Metadata, error) {
	if len(rec.StagedMetadata) > 0 && string(rec.StagedMetadata) != "null" {
		return analysis.DecodeMetadata(rec.StagedMetadata)
	}
	history, err := analysis.DecodeHistory(rec.History, rec.CreatedAt)
	if err != nil {
		return analysis.Metadata{}, fmt.Errorf("failed to decode history: %w", err)
	}
	log := analysis.NewLog(history)
	if current, ok := log.Current(); ok {
		m := current.Metadata
		m.ModifiedSincePrevious = false
		return m, nil
	}
	return analysis.Metadata{NumberOfServings: 1.0}, nil
}
