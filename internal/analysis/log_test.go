package analysis

import (
	"errors"
	"testing"
)

func fullResult(t *testing.T) Result {
	t.Helper()
	result, err := NewFullResult(
		[]DishPrediction{
			{Name: "Grilled Chicken Salad", Confidence: 0.95},
			{Name: "Chicken Caesar Wrap", Confidence: 0.82},
		},
		[]ComponentEstimate{{Name: "Grilled Chicken", CaloriesKcal: 220, ProteinG: 35}},
	)
	if err != nil {
		t.Fatalf("NewFullResult failed: %v", err)
	}
	return result
}

func briefResult() Result {
	return NewBriefResult(ComponentEstimate{
		Name:         "Grilled Chicken Salad",
		CaloriesKcal: 430,
		ProteinG:     38,
	})
}

func TestLogAppendAssignsContiguousNumbers(t *testing.T) {
	log := NewLog(History{})
	meta := Metadata{SelectedDishName: "Grilled Chicken Salad", NumberOfServings: 1.0}

	first, err := log.Append(fullResult(t), meta, "")
	if err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if first.Number != 1 {
		t.Errorf("Expected iteration 1, got %d", first.Number)
	}

	for i := 2; i <= 4; i++ {
		iter, err := log.Append(briefResult(), meta, "")
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if iter.Number != i {
			t.Errorf("Expected iteration %d, got %d", i, iter.Number)
		}
	}

	if log.Len() != 4 {
		t.Errorf("Expected 4 iterations, got %d", log.Len())
	}
	current, ok := log.Current()
	if !ok || current.Number != 4 {
		t.Errorf("Expected current iteration 4, got %+v (ok=%v)", current, ok)
	}
}

func TestLogFirstIterationMustBeFull(t *testing.T) {
	log := NewLog(History{})

	_, err := log.Append(briefResult(), Metadata{NumberOfServings: 1.0}, "")
	if err == nil {
		t.Fatal("Expected error appending brief result as iteration 1")
	}
	var commitErr *CommitError
	if !errors.As(err, &commitErr) {
		t.Errorf("Expected CommitError, got %T", err)
	}
	if log.Len() != 0 {
		t.Errorf("Failed append must not grow the log, got %d iterations", log.Len())
	}
}

func TestLogRejectsSecondFullResult(t *testing.T) {
	log := NewLog(History{})
	meta := Metadata{SelectedDishName: "Pad Thai", NumberOfServings: 1.0}

	if _, err := log.Append(fullResult(t), meta, ""); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if _, err := log.Append(fullResult(t), meta, ""); err == nil {
		t.Fatal("Expected error appending a second full result")
	}
	if log.Len() != 1 {
		t.Errorf("Failed append must not grow the log, got %d iterations", log.Len())
	}
}

func TestLogHistoryMostRecentFirst(t *testing.T) {
	log := NewLog(History{})
	meta := Metadata{SelectedDishName: "Pad Thai", NumberOfServings: 1.0}

	if _, err := log.Append(fullResult(t), meta, ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := log.Append(briefResult(), meta, ""); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all := log.History(0)
	if len(all) != 4 {
		t.Fatalf("Expected 4 iterations, got %d", len(all))
	}
	for i, iter := range all {
		if want := 4 - i; iter.Number != want {
			t.Errorf("Position %d: expected iteration %d, got %d", i, want, iter.Number)
		}
	}

	limited := log.History(2)
	if len(limited) != 2 {
		t.Fatalf("Expected 2 iterations with limit 2, got %d", len(limited))
	}
	if limited[0].Number != 4 || limited[1].Number != 3 {
		t.Errorf("Expected iterations [4, 3], got [%d, %d]", limited[0].Number, limited[1].Number)
	}

	oversized := log.History(100)
	if len(oversized) != 4 {
		t.Errorf("Limit beyond length should return everything, got %d", len(oversized))
	}
}

func TestLogHistoryReturnsCopy(t *testing.T) {
	log := NewLog(History{})
	meta := Metadata{SelectedDishName: "Pad Thai", NumberOfServings: 1.0}
	if _, err := log.Append(fullResult(t), meta, ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	snapshot := log.History(0)
	if _, err := log.Append(briefResult(), meta, ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if len(snapshot) != 1 {
		t.Errorf("Earlier snapshot must not observe later appends, got %d iterations", len(snapshot))
	}
}

func TestLogCurrentOnEmptyLog(t *testing.T) {
	log := NewLog(History{})
	if _, ok := log.Current(); ok {
		t.Error("Empty log should have no current iteration")
	}
}

func TestLogSnapshotRoundTrip(t *testing.T) {
	log := NewLog(History{})
	meta := Metadata{SelectedDishName: "Udon", NumberOfServings: 2.0}
	if _, err := log.Append(fullResult(t), meta, "looks saltier than that"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	raw, err := EncodeHistory(log.Snapshot())
	if err != nil {
		t.Fatalf("EncodeHistory failed: %v", err)
	}
	decoded, err := DecodeHistory(raw, log.Snapshot().Iterations[0].CreatedAt)
	if err != nil {
		t.Fatalf("DecodeHistory failed: %v", err)
	}

	if decoded.Current != 1 || len(decoded.Iterations) != 1 {
		t.Fatalf("Unexpected decoded history: %+v", decoded)
	}
	iter := decoded.Iterations[0]
	if iter.Metadata.SelectedDishName != "Udon" {
		t.Errorf("Expected dish 'Udon', got '%s'", iter.Metadata.SelectedDishName)
	}
	if iter.UserFeedback != "looks saltier than that" {
		t.Errorf("Expected feedback preserved, got '%s'", iter.UserFeedback)
	}
	if iter.Result.Kind != ResultFull {
		t.Errorf("Expected full result, got '%s'", iter.Result.Kind)
	}
}
