package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnalysisRecord is the aggregate for one uploaded dish image and its full
// analysis history. History holds the iteration document (or, for legacy
// rows, the flat pre-history result blob, adapted at read time and never
// rewritten). StagedMetadata holds uncommitted user corrections so they
// survive failed refinement attempts and restarts.
type AnalysisRecord struct {
	ID             string         `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerID        uint           `json:"ownerId" gorm:"not null;index"`
	Owner          *User          `json:"-" gorm:"foreignKey:OwnerID"`
	ImageKey       string         `json:"imageKey" gorm:"not null"`
	ImageURL       string         `json:"imageUrl"`
	DishPosition   int            `json:"dishPosition" gorm:"default:1"`
	Status         string         `json:"status" gorm:"not null;default:'idle'"` // idle, predicting, awaiting_confirmation, analyzing, completed, failed
	History        datatypes.JSON `json:"history" gorm:"type:jsonb"`
	StagedMetadata datatypes.JSON `json:"stagedMetadata" gorm:"type:jsonb"`
	StagedFeedback string         `json:"stagedFeedback" gorm:"type:text"`
	LastError      string         `json:"lastError" gorm:"type:text"`
	TargetDate     *time.Time     `json:"targetDate" gorm:"index"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}
