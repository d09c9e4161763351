package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/models"
	"gorm.io/datatypes"
)

// InMemoryRecordRepository backs tests. Reads hand out copies so callers get
// the same copy-on-read semantics the database gives them.
type InMemoryRecordRepository struct {
	mu      sync.RWMutex
	records map[string]*models.AnalysisRecord
}

func NewInMemoryRecordRepository() *InMemoryRecordRepository {
	return &InMemoryRecordRepository{
		records: make(map[string]*models.AnalysisRecord),
	}
}

func cloneRecord(rec *models.AnalysisRecord) *models.AnalysisRecord {
	out := *rec
	out.History = append(datatypes.JSON(nil), rec.History...)
	out.StagedMetadata = append(datatypes.JSON(nil), rec.StagedMetadata...)
	if rec.TargetDate != nil {
		d := *rec.TargetDate
		out.TargetDate = &d
	}
	return &out
}

func (r *InMemoryRecordRepository) Create(rec *models.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (r *InMemoryRecordRepository) Get(id string) (*models.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

func (r *InMemoryRecordRepository) ListByDate(ownerID uint, date time.Time) ([]models.AnalysisRecord, error) {
	start, end := dayBounds(date)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.AnalysisRecord
	for _, rec := range r.records {
		if rec.OwnerID != ownerID || rec.TargetDate == nil {
			continue
		}
		if rec.TargetDate.Before(start) || !rec.TargetDate.Before(end) {
			continue
		}
		out = append(out, *cloneRecord(rec))
	}
	return out, nil
}

func (r *InMemoryRecordRepository) CountByDate(ownerID uint, date time.Time) (int64, error) {
	recs, err := r.ListByDate(ownerID, date)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func (r *InMemoryRecordRepository) UpdateStatus(id string, status analysis.State, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Status = string(status)
	rec.LastError = lastError
	return nil
}

func (r *InMemoryRecordRepository) UpdateStaged(id string, staged datatypes.JSON, feedback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.StagedMetadata = append(datatypes.JSON(nil), staged...)
	rec.StagedFeedback = feedback
	return nil
}

func (r *InMemoryRecordRepository) CommitIteration(id string, history datatypes.JSON, staged datatypes.JSON, consumedStaged datatypes.JSON, consumedFeedback string, status analysis.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.History = append(datatypes.JSON(nil), history...)
	rec.Status = string(status)
	rec.LastError = ""

	// Reset the staged area only if it still holds the snapshot this
	// iteration consumed; edits staged while the analysis ran are kept.
	if string(rec.StagedMetadata) == string(consumedStaged) && rec.StagedFeedback == consumedFeedback {
		rec.StagedMetadata = append(datatypes.JSON(nil), staged...)
		rec.StagedFeedback = ""
	}
	return nil
}
