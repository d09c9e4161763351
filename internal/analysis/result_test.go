package analysis

import (
	"errors"
	"testing"
	"time"
)

func TestNewFullResultSortsPredictions(t *testing.T) {
	result, err := NewFullResult(
		[]DishPrediction{
			{Name: "Chicken Caesar Wrap", Confidence: 0.82},
			{Name: "Grilled Chicken Salad", Confidence: 0.95},
			{Name: "Cobb Salad", Confidence: 0.70},
		},
		[]ComponentEstimate{{Name: "Chicken", CaloriesKcal: 220}},
	)
	if err != nil {
		t.Fatalf("NewFullResult failed: %v", err)
	}

	want := []string{"Grilled Chicken Salad", "Chicken Caesar Wrap", "Cobb Salad"}
	for i, name := range want {
		if result.Predictions[i].Name != name {
			t.Errorf("Position %d: expected '%s', got '%s'", i, name, result.Predictions[i].Name)
		}
	}
}

func TestNewFullResultRejectsOutOfRangeConfidence(t *testing.T) {
	tests := []float64{-0.1, 1.5, 2.0}
	for _, confidence := range tests {
		_, err := NewFullResult(
			[]DishPrediction{{Name: "Soup", Confidence: confidence}},
			nil,
		)
		if err == nil {
			t.Errorf("Expected error for confidence %v, got nil", confidence)
			continue
		}
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("Expected ValidationError for confidence %v, got %T", confidence, err)
		}
	}
}

func TestResultValidate(t *testing.T) {
	estimate := ComponentEstimate{Name: "Curry", CaloriesKcal: 520}

	tests := []struct {
		name    string
		result  Result
		wantErr bool
	}{
		{
			name:   "valid full",
			result: Result{Kind: ResultFull, Predictions: []DishPrediction{{Name: "Curry", Confidence: 0.9}}},
		},
		{
			name:   "valid brief",
			result: Result{Kind: ResultBrief, Estimate: &estimate},
		},
		{
			name:    "brief with predictions",
			result:  Result{Kind: ResultBrief, Estimate: &estimate, Predictions: []DishPrediction{{Name: "Curry", Confidence: 0.9}}},
			wantErr: true,
		},
		{
			name:    "brief without estimate",
			result:  Result{Kind: ResultBrief},
			wantErr: true,
		},
		{
			name:    "full with brief estimate",
			result:  Result{Kind: ResultFull, Estimate: &estimate},
			wantErr: true,
		},
		{
			name:    "unordered full predictions",
			result:  Result{Kind: ResultFull, Predictions: []DishPrediction{{Confidence: 0.5}, {Confidence: 0.9}}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			result:  Result{Kind: "partial"},
			wantErr: true,
		},
	}

	for _, test := range tests {
		err := test.result.Validate()
		if test.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", test.name)
		}
		if !test.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
		}
	}
}

func TestDecodeHistoryEmpty(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("null")} {
		h, err := DecodeHistory(raw, time.Now())
		if err != nil {
			t.Errorf("DecodeHistory(%q) failed: %v", raw, err)
		}
		if len(h.Iterations) != 0 || h.Current != 0 {
			t.Errorf("DecodeHistory(%q) = %+v, want empty history", raw, h)
		}
	}
}

func TestDecodeHistoryLegacyBlob(t *testing.T) {
	legacy := []byte(`{
		"dish_name": "Chicken Biryani",
		"healthiness_score": 6,
		"healthiness_score_rationale": "High carbs but decent protein",
		"calories_kcal": 650,
		"fiber_g": 4,
		"carbs_g": 78,
		"protein_g": 32,
		"fat_g": 22,
		"micronutrients": ["iron", "vitamin B6"]
	}`)

	createdAt := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	h, err := DecodeHistory(legacy, createdAt)
	if err != nil {
		t.Fatalf("DecodeHistory failed: %v", err)
	}

	if len(h.Iterations) != 1 || h.Current != 1 {
		t.Fatalf("Expected single current iteration, got %+v", h)
	}
	iter := h.Iterations[0]
	if iter.Number != 1 {
		t.Errorf("Expected iteration number 1, got %d", iter.Number)
	}
	if !iter.CreatedAt.Equal(createdAt) {
		t.Errorf("Expected iteration stamped with record creation time, got %v", iter.CreatedAt)
	}
	if iter.Result.Kind != ResultFull {
		t.Errorf("Expected legacy blob adapted to a full result, got '%s'", iter.Result.Kind)
	}
	if len(iter.Result.Predictions) != 0 {
		t.Errorf("Legacy adaptation must not invent predictions, got %d", len(iter.Result.Predictions))
	}
	if iter.Metadata.SelectedDishName != "Chicken Biryani" {
		t.Errorf("Expected dish name from legacy blob, got '%s'", iter.Metadata.SelectedDishName)
	}
	if iter.Metadata.NumberOfServings != 1.0 {
		t.Errorf("Expected default 1.0 servings, got %v", iter.Metadata.NumberOfServings)
	}

	if len(iter.Result.Components) != 1 {
		t.Fatalf("Expected one component, got %d", len(iter.Result.Components))
	}
	comp := iter.Result.Components[0]
	if comp.CaloriesKcal != 650 || comp.ProteinG != 32 || comp.HealthinessScore != 6 {
		t.Errorf("Legacy nutrition not carried over: %+v", comp)
	}
}

func TestDecodeHistoryLegacyBlobWithoutDishName(t *testing.T) {
	h, err := DecodeHistory([]byte(`{"calories_kcal": 300}`), time.Now())
	if err != nil {
		t.Fatalf("DecodeHistory failed: %v", err)
	}
	if h.Iterations[0].Metadata.SelectedDishName != "Unknown" {
		t.Errorf("Expected 'Unknown' dish name, got '%s'", h.Iterations[0].Metadata.SelectedDishName)
	}
}

func TestDecodeHistoryMalformed(t *testing.T) {
	if _, err := DecodeHistory([]byte(`{"iterations": "nope"}`), time.Now()); err == nil {
		t.Error("Expected error for malformed iterations document")
	}
	if _, err := DecodeHistory([]byte(`not json`), time.Now()); err == nil {
		t.Error("Expected error for non-JSON document")
	}
}
