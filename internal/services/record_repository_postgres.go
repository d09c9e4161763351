package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormRecordRepository is the Postgres-backed record repository.
type GormRecordRepository struct {
	db *gorm.DB
}

func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

func (r *GormRecordRepository) Create(rec *models.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (r *GormRecordRepository) Get(id string) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	if err := r.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return &rec, nil
}

func (r *GormRecordRepository) ListByDate(ownerID uint, date time.Time) ([]models.AnalysisRecord, error) {
	start, end := dayBounds(date)
	var recs []models.AnalysisRecord
	err := r.db.
		Where("owner_id = ? AND target_date >= ? AND target_date < ?", ownerID, start, end).
		Order("dish_position ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, nil
}

func (r *GormRecordRepository) CountByDate(ownerID uint, date time.Time) (int64, error) {
	start, end := dayBounds(date)
	var count int64
	err := r.db.Model(&models.AnalysisRecord{}).
		Where("owner_id = ? AND target_date >= ? AND target_date < ?", ownerID, start, end).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (r *GormRecordRepository) UpdateStatus(id string, status analysis.State, lastError string) error {
	res := r.db.Model(&models.AnalysisRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     string(status),
		"last_error": lastError,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update record status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *GormRecordRepository) UpdateStaged(id string, staged datatypes.JSON, feedback string) error {
	res := r.db.Model(&models.AnalysisRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"staged_metadata": staged,
		"staged_feedback": feedback,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update staged metadata: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *GormRecordRepository) CommitIteration(id string, history datatypes.JSON, staged datatypes.JSON, consumedStaged datatypes.JSON, consumedFeedback string, status analysis.State) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AnalysisRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
			"history":    history,
			"status":     string(status),
			"last_error": "",
		})
		if res.Error != nil {
			return fmt.Errorf("failed to commit iteration: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}

		// Reset the staged columns only if they still hold the snapshot this
		// iteration consumed. Zero rows affected means the user staged new
		// edits while the analysis was running; those win.
		res = tx.Model(&models.AnalysisRecord{}).
			Where("id = ? AND staged_metadata IS NOT DISTINCT FROM ? AND staged_feedback IS NOT DISTINCT FROM ?",
				id, consumedStaged, consumedFeedback).
			Updates(map[string]interface{}{
				"staged_metadata": staged,
				"staged_feedback": "",
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reset staged metadata: %w", res.Error)
		}
		return nil
	})
}
