package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ResultKind tags the analysis result variant.
type ResultKind string

const (
	ResultFull  ResultKind = "full"
	ResultBrief ResultKind = "brief"
)

// DishPrediction is one candidate dish identified by the full analysis.
type DishPrediction struct {
	Name               string   `json:"name"`
	Confidence         float64  `json:"confidence"`
	ServingSizeOptions []string `json:"servingSizeOptions,omitempty"`
}

// ComponentEstimate holds the nutrition and healthiness estimate for one dish
// component (or the dish as a whole for brief results).
type ComponentEstimate struct {
	Name             string   `json:"name"`
	ServingSize      string   `json:"servingSize,omitempty"`
	CaloriesKcal     int      `json:"caloriesKcal"`
	ProteinG         int      `json:"proteinG"`
	CarbsG           int      `json:"carbsG"`
	FatG             int      `json:"fatG"`
	FiberG           int      `json:"fiberG"`
	HealthinessScore int      `json:"healthinessScore"`
	ScoreRationale   string   `json:"scoreRationale,omitempty"`
	Micronutrients   []string `json:"micronutrients,omitempty"`
}

// Result is the tagged union of analysis outcomes. Full results carry dish
// predictions and per-component estimates and exist exactly once per record,
// at iteration 1. Brief results carry a single consolidated estimate and
// never include predictions.
type Result struct {
	Kind        ResultKind          `json:"kind"`
	Predictions []DishPrediction    `json:"predictions,omitempty"`
	Components  []ComponentEstimate `json:"components,omitempty"`
	Estimate    *ComponentEstimate  `json:"estimate,omitempty"`
}

// NewFullResult builds a validated Full result. Predictions are sorted by
// descending confidence; confidences outside [0,1] are rejected.
func NewFullResult(predictions []DishPrediction, components []ComponentEstimate) (Result, error) {
	for _, p := range predictions {
		if p.Confidence < 0 || p.Confidence > 1 {
			return Result{}, &ValidationError{
				Field:  "confidence",
				Reason: fmt.Sprintf("prediction %q has confidence %v outside [0, 1]", p.Name, p.Confidence),
			}
		}
	}
	sorted := make([]DishPrediction, len(predictions))
	copy(sorted, predictions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return Result{
		Kind:        ResultFull,
		Predictions: sorted,
		Components:  components,
	}, nil
}

// NewBriefResult builds a Brief result around a single consolidated estimate.
func NewBriefResult(estimate ComponentEstimate) Result {
	e := estimate
	return Result{
		Kind:     ResultBrief,
		Estimate: &e,
	}
}

// Validate checks the structural invariants of the tagged union.
func (r Result) Validate() error {
	switch r.Kind {
	case ResultFull:
		if r.Estimate != nil {
			return fmt.Errorf("full result must not carry a brief estimate")
		}
		for i := 1; i < len(r.Predictions); i++ {
			if r.Predictions[i].Confidence > r.Predictions[i-1].Confidence {
				return fmt.Errorf("predictions not ordered by descending confidence")
			}
		}
		for _, p := range r.Predictions {
			if p.Confidence < 0 || p.Confidence > 1 {
				return fmt.Errorf("prediction %q has confidence %v outside [0, 1]", p.Name, p.Confidence)
			}
		}
	case ResultBrief:
		if len(r.Predictions) > 0 {
			return fmt.Errorf("brief result must not carry predictions")
		}
		if r.Estimate == nil {
			return fmt.Errorf("brief result missing estimate")
		}
	default:
		return fmt.Errorf("unknown result kind %q", r.Kind)
	}
	return nil
}

// legacyAnalysis is the flat pre-history result blob written by the original
// single-shot flow. It lacks the iterations wrapper entirely.
type legacyAnalysis struct {
	DishName                  string   `json:"dish_name"`
	HealthinessScore          int      `json:"healthiness_score"`
	HealthinessScoreRationale string   `json:"healthiness_score_rationale"`
	CaloriesKcal              int      `json:"calories_kcal"`
	FiberG                    int      `json:"fiber_g"`
	CarbsG                    int      `json:"carbs_g"`
	ProteinG                  int      `json:"protein_g"`
	FatG                      int      `json:"fat_g"`
	Micronutrients            []string `json:"micronutrients"`
}

// DecodeHistory decodes the persisted history document for a record.
// Documents carrying an "iterations" wrapper decode directly; legacy blobs
// without the wrapper are adapted on the fly into a single Full iteration
// stamped with the record's creation time. The adaptation is read-only: the
// stored document is never rewritten.
func DecodeHistory(raw []byte, createdAt time.Time) (History, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return History{}, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return History{}, fmt.Errorf("malformed history document: %w", err)
	}

	if _, ok := probe["iterations"]; ok {
		var h History
		if err := json.Unmarshal(raw, &h); err != nil {
			return History{}, fmt.Errorf("malformed history document: %w", err)
		}
		return h, nil
	}

	var legacy legacyAnalysis
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return History{}, fmt.Errorf("malformed legacy result: %w", err)
	}

	dish := legacy.DishName
	if dish == "" {
		dish = "Unknown"
	}
	result := Result{
		Kind: ResultFull,
		Components: []ComponentEstimate{{
			Name:             dish,
			CaloriesKcal:     legacy.CaloriesKcal,
			ProteinG:         legacy.ProteinG,
			CarbsG:           legacy.CarbsG,
			FatG:             legacy.FatG,
			FiberG:           legacy.FiberG,
			HealthinessScore: legacy.HealthinessScore,
			ScoreRationale:   legacy.HealthinessScoreRationale,
			Micronutrients:   legacy.Micronutrients,
		}},
	}
	return History{
		Iterations: []Iteration{{
			Number:    1,
			CreatedAt: createdAt,
			Metadata: Metadata{
				SelectedDishName: dish,
				NumberOfServings: 1.0,
			},
			Result: result,
		}},
		Current: 1,
	}, nil
}

// EncodeHistory serializes a history document for persistence.
func EncodeHistory(h History) ([]byte, error) {
	return json.Marshal(h)
}
