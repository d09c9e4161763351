package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platewise/backend/internal/analysis"
	"github.com/platewise/backend/internal/logger"
	"github.com/platewise/backend/internal/models"
	"github.com/platewise/backend/internal/storage"
)

// Step1Confirmation is the user's confirmation of the first analysis: the
// chosen dish plus the component list to carry into the refinement.
type Step1Confirmation struct {
	SelectedDishName string               `json:"selectedDishName" binding:"required"`
	ServingSize      string               `json:"servingSize"`
	NumberOfServings float64              `json:"numberOfServings"`
	Components       []ConfirmedComponent `json:"components" binding:"required,min=1"`
	Feedback         string               `json:"feedback"`
}

// Orchestrator drives the per-record analysis state machine. It decides
// between the expensive prediction path and the cheap refinement path,
// invokes the Analyzer under a deadline, and commits iterations atomically.
// The gate guarantees at most one Predicting/Analyzing run per record: a
// second request targeting a busy record fails fast with ConflictError.
//
// The blocking methods (Predict, ConfirmStep1, Reanalyze, Retry) run the
// whole phase before returning. The Start variants do the conflict and
// transition checks synchronously, then run the analyzer work in the
// background; callers observe the outcome by polling the Notifier.
type Orchestrator struct {
	repo     RecordRepository
	analyzer Analyzer
	images   storage.ImageStore
	gate     *analysis.Gate
	timeout  time.Duration
}

func NewOrchestrator(repo RecordRepository, analyzer Analyzer, images storage.ImageStore) *Orchestrator {
	timeout := 60
	if s := os.Getenv("ANALYZER_TIMEOUT_SECONDS"); s != "" {
		if t, err := strconv.Atoi(s); err == nil && t > 0 {
			timeout = t
		}
	}
	return &Orchestrator{
		repo:     repo,
		analyzer: analyzer,
		images:   images,
		gate:     analysis.NewGate(),
		timeout:  time.Duration(timeout) * time.Second,
	}
}

// Predict runs the first, expensive analysis for a record: the only phase
// allowed to generate dish predictions. Legal from idle, or from failed as
// long as no iteration has ever been committed.
func (o *Orchestrator) Predict(ctx context.Context, recordID string) error {
	if err := o.gate.Acquire(recordID); err != nil {
		return err
	}
	defer o.gate.Release(recordID)
	return o.predictLocked(ctx, recordID)
}

// StartPredict validates the transition synchronously and runs the
// prediction in the background.
func (o *Orchestrator) StartPredict(recordID string) error {
	return o.start(recordID, o.checkPredict, o.predictLocked)
}

// ConfirmStep1 moves the record from AwaitingConfirmation into the first
// refinement, using the confirmed components as analyzer context. The cached
// predictions from iteration 1 are reused, never regenerated.
func (o *Orchestrator) ConfirmStep1(ctx context.Context, recordID string, conf Step1Confirmation) error {
	if err := validateConfirmation(conf); err != nil {
		return err
	}
	if err := o.gate.Acquire(recordID); err != nil {
		return err
	}
	defer o.gate.Release(recordID)
	return o.confirmLocked(ctx, recordID, conf)
}

// StartConfirmStep1 validates synchronously and runs the refinement in the
// background.
func (o *Orchestrator) StartConfirmStep1(recordID string, conf Step1Confirmation) error {
	if err := validateConfirmation(conf); err != nil {
		return err
	}
	return o.start(recordID, o.checkConfirm, func(ctx context.Context, id string) error {
		return o.confirmLocked(ctx, id, conf)
	})
}

// Reanalyze re-runs the cheap analysis against the staged metadata. Legal
// from Completed or AwaitingConfirmation; a second request while one is in
// flight fails fast with ConflictError.
func (o *Orchestrator) Reanalyze(ctx context.Context, recordID string) error {
	if err := o.gate.Acquire(recordID); err != nil {
		return err
	}
	defer o.gate.Release(recordID)
	return o.reanalyzeLocked(ctx, recordID)
}

// StartReanalyze validates synchronously and runs the refinement in the
// background.
func (o *Orchestrator) StartReanalyze(recordID string) error {
	return o.start(recordID, o.checkReanalyze, o.reanalyzeLocked)
}

// Retry re-enters the failed phase with the same inputs: Predicting when the
// record has no committed iteration, Analyzing otherwise. Staged metadata
// survives failures, so a retried refinement sees the same edits.
func (o *Orchestrator) Retry(ctx context.Context, recordID string) error {
	if err := o.gate.Acquire(recordID); err != nil {
		return err
	}
	defer o.gate.Release(recordID)
	return o.retryLocked(ctx, recordID)
}

// StartRetry validates synchronously and re-runs the failed phase in the
// background.
func (o *Orchestrator) StartRetry(recordID string) error {
	return o.start(recordID, o.checkRetry, o.retryLocked)
}

// start is the shared sync-check/async-run skeleton: claim the gate, verify
// the transition while holding it, then hand off to a goroutine that
// releases the gate when the phase settles.
func (o *Orchestrator) start(recordID string, check func(*models.AnalysisRecord, *analysis.Log) error, run func(context.Context, string) error) error {
	if err := o.gate.Acquire(recordID); err != nil {
		return err
	}

	rec, log, err := o.load(recordID)
	if err != nil {
		o.gate.Release(recordID)
		return err
	}
	if err := check(rec, log); err != nil {
		o.gate.Release(recordID)
		return err
	}

	go func() {
		defer o.gate.Release(recordID)
		if err := run(context.Background(), recordID); err != nil {
			logger.WithAnalysis(recordID, "background").WithField("error", err.Error()).Error("Background analysis failed")
		}
	}()
	return nil
}

func (o *Orchestrator) checkPredict(rec *models.AnalysisRecord, log *analysis.Log) error {
	state := analysis.State(rec.Status)
	if !state.CanPredict() || log.Len() > 0 {
		return fmt.Errorf("predict from state %s with %d iterations: %w", rec.Status, log.Len(), analysis.ErrInvalidTransition)
	}
	return nil
}

func (o *Orchestrator) checkConfirm(rec *models.AnalysisRecord, log *analysis.Log) error {
	if analysis.State(rec.Status) != analysis.StateAwaitingConfirmation || log.Len() == 0 {
		return fmt.Errorf("confirm from state %s: %w", rec.Status, analysis.ErrInvalidTransition)
	}
	return nil
}

func (o *Orchestrator) checkReanalyze(rec *models.AnalysisRecord, log *analysis.Log) error {
	// Idle with committed history happens for legacy rows adopted via the
	// read adapter; they are refinable like completed records.
	state := analysis.State(rec.Status)
	allowed := state.CanAnalyze() || state == analysis.StateIdle
	if !allowed || log.Len() == 0 {
		return fmt.Errorf("reanalyze from state %s with %d iterations: %w", rec.Status, log.Len(), analysis.ErrInvalidTransition)
	}
	return nil
}

func (o *Orchestrator) checkRetry(rec *models.AnalysisRecord, log *analysis.Log) error {
	if analysis.State(rec.Status) != analysis.StateFailed {
		return fmt.Errorf("retry from state %s: %w", rec.Status, analysis.ErrInvalidTransition)
	}
	return nil
}

func (o *Orchestrator) predictLocked(ctx context.Context, recordID string) error {
	rec, log, err := o.load(recordID)
	if err != nil {
		return err
	}
	if err := o.checkPredict(rec, log); err != nil {
		return err
	}

	if err := o.repo.UpdateStatus(recordID, analysis.StatePredicting, ""); err != nil {
		return &analysis.CommitError{Err: err}
	}
	logger.WithAnalysis(recordID, "predicting").Info("Starting full analysis")

	result, err := o.invoke(ctx, rec, analysis.SchemaFull, AnalyzerContext{})
	if err != nil {
		o.fail(recordID, err)
		return &analysis.AnalyzerError{Err: err}
	}

	// Seed metadata from the top prediction; the user corrects it later.
	metadata := analysis.Metadata{
		SelectedDishName: "Unknown",
		NumberOfServings: 1.0,
	}
	if len(result.Predictions) > 0 {
		metadata.SelectedDishName = result.Predictions[0].Name
		if len(result.Predictions[0].ServingSizeOptions) > 0 {
			metadata.SelectedServingSize = result.Predictions[0].ServingSizeOptions[0]
		}
	}

	if err := o.commit(rec, log, result, metadata, "", analysis.StateAwaitingConfirmation); err != nil {
		return err
	}
	logger.WithAnalysis(recordID, "predicting").Info("Full analysis committed as iteration 1")
	return nil
}

func (o *Orchestrator) confirmLocked(ctx context.Context, recordID string, conf Step1Confirmation) error {
	rec, log, err := o.load(recordID)
	if err != nil {
		return err
	}
	if err := o.checkConfirm(rec, log); err != nil {
		return err
	}

	current, _ := log.Current()
	editor := analysis.NewEditor(current.Metadata)
	servings := conf.NumberOfServings
	if servings == 0 {
		servings = 1.0
	}
	update := analysis.MetadataUpdate{
		DishName: &conf.SelectedDishName,
		Servings: &servings,
	}
	if strings.TrimSpace(conf.ServingSize) != "" {
		update.ServingSize = &conf.ServingSize
	}
	metadata, err := editor.Stage(update)
	if err != nil {
		return err
	}

	components := make([]ConfirmedComponent, len(conf.Components))
	copy(components, conf.Components)
	for i := range components {
		components[i].Servings = analysis.ClampServings(components[i].Servings)
	}

	return o.refine(ctx, rec, log, metadata, conf.Feedback, AnalyzerContext{
		DishName:    metadata.SelectedDishName,
		ServingSize: metadata.SelectedServingSize,
		Servings:    metadata.NumberOfServings,
		Components:  components,
		Feedback:    conf.Feedback,
	})
}

func (o *Orchestrator) reanalyzeLocked(ctx context.Context, recordID string) error {
	rec, log, err := o.load(recordID)
	if err != nil {
		return err
	}
	if err := o.checkReanalyze(rec, log); err != nil {
		return err
	}

	metadata, err := o.stagedOrCurrent(rec, log)
	if err != nil {
		return err
	}

	return o.refine(ctx, rec, log, metadata, rec.StagedFeedback, AnalyzerContext{
		DishName:    metadata.SelectedDishName,
		ServingSize: metadata.SelectedServingSize,
		Servings:    metadata.NumberOfServings,
		Feedback:    rec.StagedFeedback,
	})
}

func (o *Orchestrator) retryLocked(ctx context.Context, recordID string) error {
	rec, log, err := o.load(recordID)
	if err != nil {
		return err
	}
	if err := o.checkRetry(rec, log); err != nil {
		return err
	}
	if log.Len() == 0 {
		return o.predictLocked(ctx, recordID)
	}
	return o.reanalyzeLocked(ctx, recordID)
}

// refine is the shared Analyzing phase: invoke the brief schema, then commit
// the new iteration atomically. On failure no iteration is appended and
// staged metadata is preserved for retry.
func (o *Orchestrator) refine(ctx context.Context, rec *models.AnalysisRecord, log *analysis.Log, metadata analysis.Metadata, feedback string, actx AnalyzerContext) error {
	if err := o.repo.UpdateStatus(rec.ID, analysis.StateAnalyzing, ""); err != nil {
		return &analysis.CommitError{Err: err}
	}
	logger.WithAnalysis(rec.ID, "analyzing").Info("Starting brief re-analysis")

	result, err := o.invoke(ctx, rec, analysis.SchemaBrief, actx)
	if err != nil {
		o.fail(rec.ID, err)
		return &analysis.AnalyzerError{Err: err}
	}

	if err := o.commit(rec, log, result, metadata, feedback, analysis.StateCompleted); err != nil {
		return err
	}
	logger.WithAnalysis(rec.ID, "analyzing").WithField("iteration", log.Len()).Info("Brief analysis committed")
	return nil
}

// invoke runs the analyzer under the configured deadline after a health
// check, reading the image bytes back from storage.
func (o *Orchestrator) invoke(ctx context.Context, rec *models.AnalysisRecord, kind analysis.SchemaKind, actx AnalyzerContext) (analysis.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.analyzer.CheckHealth(ctx); err != nil {
		return analysis.Result{}, fmt.Errorf("analyzer unavailable: %w", err)
	}

	image, err := o.images.Read(ctx, rec.ImageKey)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("failed to load image: %w", err)
	}

	return o.analyzer.Invoke(ctx, image, kind, actx)
}

// commit appends the iteration and persists history, staged baseline and
// state in a single write. The staged metadata baseline carries the committed
// values with the dirty flag cleared; clearing happens only here, after the
// iteration is durably committed, and only if the staged area still holds
// the snapshot this run consumed. Edits staged while the analyzer was
// running stay pending for the next reanalyze.
func (o *Orchestrator) commit(rec *models.AnalysisRecord, log *analysis.Log, result analysis.Result, metadata analysis.Metadata, feedback string, next analysis.State) error {
	if _, err := log.Append(result, metadata, feedback); err != nil {
		o.fail(rec.ID, err)
		return err
	}

	history, err := analysis.EncodeHistory(log.Snapshot())
	if err != nil {
		o.fail(rec.ID, err)
		return &analysis.CommitError{Err: err}
	}

	baseline := metadata
	baseline.ModifiedSincePrevious = false
	staged, err := analysis.EncodeMetadata(baseline)
	if err != nil {
		o.fail(rec.ID, err)
		return &analysis.CommitError{Err: err}
	}

	if err := o.repo.CommitIteration(rec.ID, history, staged, rec.StagedMetadata, rec.StagedFeedback, next); err != nil {
		o.fail(rec.ID, err)
		return &analysis.CommitError{Err: err}
	}
	return nil
}

func (o *Orchestrator) fail(recordID string, cause error) {
	logger.WithAnalysis(recordID, "failed").WithField("error", cause.Error()).Error("Analysis attempt failed")
	if err := o.repo.UpdateStatus(recordID, analysis.StateFailed, cause.Error()); err != nil {
		logger.Error("Failed to mark record as failed", map[string]interface{}{
			"record_id": recordID,
			"error":     err.Error(),
		})
	}
}

func (o *Orchestrator) load(recordID string) (*models.AnalysisRecord, *analysis.Log, error) {
	rec, err := o.repo.Get(recordID)
	if err != nil {
		return nil, nil, err
	}
	history, err := analysis.DecodeHistory(rec.History, rec.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return rec, analysis.NewLog(history), nil
}

// stagedOrCurrent resolves the metadata snapshot a refinement runs with:
// the staged edits when present, otherwise the current iteration's metadata.
func (o *Orchestrator) stagedOrCurrent(rec *models.AnalysisRecord, log *analysis.Log) (analysis.Metadata, error) {
	if len(rec.StagedMetadata) > 0 && string(rec.StagedMetadata) != "null" {
		return analysis.DecodeMetadata(rec.StagedMetadata)
	}
	current, ok := log.Current()
	if !ok {
		return analysis.Metadata{}, fmt.Errorf("no metadata available: %w", analysis.ErrInvalidTransition)
	}
	return current.Metadata, nil
}

func validateConfirmation(conf Step1Confirmation) error {
	if strings.TrimSpace(conf.SelectedDishName) == "" {
		return &analysis.ValidationError{Field: "selectedDishName", Reason: "must not be empty"}
	}
	if len(conf.Components) == 0 {
		return &analysis.ValidationError{Field: "components", Reason: "at least one component is required"}
	}
	return nil
}
