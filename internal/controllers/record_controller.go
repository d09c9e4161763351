package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/services"
	"github.com/platewise/backend/internal/storage"
)

type RecordController struct {
	records      *services.RecordService
	orchestrator *services.Orchestrator
	notifier     *services.Notifier
	images       storage.ImageStore
}

func NewRecordController(records *services.RecordService, orchestrator *services.Orchestrator, notifier *services.Notifier, images storage.ImageStore) *RecordController {
	return &RecordController{
		records:      records,
		orchestrator: orchestrator,
		notifier:     notifier,
		images:       images,
	}
}

type stageMetadataRequest struct {
	SelectedDishName    *string  `json:"selectedDishName"`
	SelectedServingSize *string  `json:"selectedServingSize"`
	NumberOfServings    *float64 `json:"numberOfServings"`
	Feedback            string   `json:"feedback"`
}

// UploadRecord accepts a dish image and registers it for the given date. The
// first analysis starts in the background; clients poll the record until it
// reaches awaiting_confirmation or failed.
func (rc *RecordController) UploadRecord(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image uploaded"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" && ext != ".webp" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only JPEG, PNG and WebP images are supported"})
		return
	}

	targetDate := time.Now()
	if raw := c.PostForm("date"); raw != "" {
		targetDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
			return
		}
	}

	position := 0
	if raw := c.PostForm("dishPosition"); raw != "" {
		position, err = strconv.Atoi(raw)
		if err != nil || position < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dish position"})
			return
		}
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded image"})
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	key := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	url, err := rc.images.Save(c.Request.Context(), key, contentType, src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store image"})
		return
	}

	rec, err := rc.records.CreateRecord(userID.(uint), key, url, targetDate, position)
	if err != nil {
		respondRecordError(c, err)
		return
	}

	if err := rc.orchestrator.StartPredict(rec.ID); err != nil {
		respondRecordError(c, err)
		return
	}

	snapshot, err := rc.notifier.Snapshot(rec.ID, userID.(uint))
	if err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Dish image uploaded, analysis started",
		"record":  snapshot,
	})
}

// GetRecord returns the record snapshot clients poll while an analysis runs.
func (rc *RecordController) GetRecord(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	snapshot, err := rc.notifier.Snapshot(c.Param("id"), userID.(uint))
	if err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": snapshot})
}

// ListRecords returns the caller's records for one calendar day.
func (rc *RecordController) ListRecords(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	raw := c.Query("date")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing date query parameter"})
		return
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return
	}

	records, err := rc.records.ListByDate(userID.(uint), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch records"})
		return
	}

	snapshots := make([]*services.RecordSnapshot, 0, len(records))
	for i := range records {
		snapshot, err := services.SnapshotFromRecord(&records[i])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode record"})
			return
		}
		snapshots = append(snapshots, snapshot)
	}

	c.JSON(http.StatusOK, gin.H{
		"date":    raw,
		"records": snapshots,
	})
}

// StageMetadata merges a partial metadata correction into the record's
// staging area. Staging never triggers an analysis; the edits take effect on
// the next reanalyze.
func (rc *RecordController) StageMetadata(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req stageMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	update := analysis.MetadataUpdate{
		DishName:    req.SelectedDishName,
		ServingSize: req.SelectedServingSize,
		Servings:    req.NumberOfServings,
	}
	staged, err := rc.records.StageMetadata(c.Param("id"), userID.(uint), update, req.Feedback)
	if err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Metadata staged",
		"metadata": staged,
	})
}

// ConfirmRecord accepts the user's step-1 confirmation and starts the first
// refinement in the background.
func (rc *RecordController) ConfirmRecord(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	recordID := c.Param("id")
	if _, err := rc.records.GetOwned(recordID, userID.(uint)); err != nil {
		respondRecordError(c, err)
		return
	}

	var conf services.Step1Confirmation
	if err := c.ShouldBindJSON(&conf); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid confirmation body"})
		return
	}

	if err := rc.orchestrator.StartConfirmStep1(recordID, conf); err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Analysis started"})
}

// ReanalyzeRecord starts a refinement against the staged metadata.
func (rc *RecordController) ReanalyzeRecord(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	recordID := c.Param("id")
	if _, err := rc.records.GetOwned(recordID, userID.(uint)); err != nil {
		respondRecordError(c, err)
		return
	}

	if err := rc.orchestrator.StartReanalyze(recordID); err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Re-analysis started"})
}

// RetryRecord re-runs the failed phase with the same inputs.
func (rc *RecordController) RetryRecord(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	recordID := c.Param("id")
	if _, err := rc.records.GetOwned(recordID, userID.(uint)); err != nil {
		respondRecordError(c, err)
		return
	}

	if err := rc.orchestrator.StartRetry(recordID); err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Retry started"})
}

// GetIterations returns the record's iteration history, newest first.
func (rc *RecordController) GetIterations(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
	}

	iterations, err := rc.notifier.History(c.Param("id"), userID.(uint), limit)
	if err != nil {
		respondRecordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"iterations": iterations})
}

// respondRecordError maps the record domain errors onto HTTP statuses.
func respondRecordError(c *gin.Context, err error) {
	var validationErr *analysis.ValidationError
	var conflictErr *analysis.ConflictError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": "Analysis already in progress for this record"})
	case errors.Is(err, analysis.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
