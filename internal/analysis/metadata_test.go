package analysis

import (
	"errors"
	"math"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func TestClampServings(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{15.0, 10.0},
		{0.0, 0.1},
		{-3.0, 0.1},
		{0.1, 0.1},
		{10.0, 10.0},
		{2.5, 2.5},
	}

	for _, test := range tests {
		got := ClampServings(test.in)
		if got != test.want {
			t.Errorf("ClampServings(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestEditorStageMergesPartialUpdate(t *testing.T) {
	editor := NewEditor(Metadata{
		SelectedDishName:    "Caesar Salad",
		SelectedServingSize: "1 bowl",
		NumberOfServings:    1.0,
	})

	staged, err := editor.Stage(MetadataUpdate{Servings: floatPtr(2.0)})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if staged.SelectedDishName != "Caesar Salad" {
		t.Errorf("Expected dish name preserved, got '%s'", staged.SelectedDishName)
	}
	if staged.NumberOfServings != 2.0 {
		t.Errorf("Expected 2.0 servings, got %v", staged.NumberOfServings)
	}
	if !staged.ModifiedSincePrevious {
		t.Error("Expected staged metadata to be marked as modified")
	}
}

func TestEditorStageClampsServings(t *testing.T) {
	editor := NewEditor(Metadata{SelectedDishName: "Ramen", NumberOfServings: 1.0})

	staged, err := editor.Stage(MetadataUpdate{Servings: floatPtr(15.0)})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if staged.NumberOfServings != 10.0 {
		t.Errorf("Expected servings clamped to 10.0, got %v", staged.NumberOfServings)
	}

	staged, err = editor.Stage(MetadataUpdate{Servings: floatPtr(0.0)})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if staged.NumberOfServings != 0.1 {
		t.Errorf("Expected servings clamped to 0.1, got %v", staged.NumberOfServings)
	}
}

func TestEditorStageRejectsInvalidUpdates(t *testing.T) {
	tests := []struct {
		name   string
		update MetadataUpdate
	}{
		{"empty update", MetadataUpdate{}},
		{"blank dish name", MetadataUpdate{DishName: strPtr("   ")}},
		{"blank serving size", MetadataUpdate{ServingSize: strPtr("")}},
		{"NaN servings", MetadataUpdate{Servings: floatPtr(math.NaN())}},
		{"infinite servings", MetadataUpdate{Servings: floatPtr(math.Inf(1))}},
	}

	for _, test := range tests {
		editor := NewEditor(Metadata{SelectedDishName: "Pho", NumberOfServings: 1.0})
		_, err := editor.Stage(test.update)
		if err == nil {
			t.Errorf("%s: expected validation error, got nil", test.name)
			continue
		}
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("%s: expected ValidationError, got %T", test.name, err)
		}
	}
}

func TestEditorRejectedUpdateLeavesStagedUntouched(t *testing.T) {
	editor := NewEditor(Metadata{SelectedDishName: "Pho", NumberOfServings: 1.0})

	if _, err := editor.Stage(MetadataUpdate{DishName: strPtr("  ")}); err == nil {
		t.Fatal("Expected validation error")
	}

	staged := editor.Commit()
	if staged.SelectedDishName != "Pho" {
		t.Errorf("Expected dish name unchanged after rejected update, got '%s'", staged.SelectedDishName)
	}
	if staged.ModifiedSincePrevious {
		t.Error("Expected dirty flag unset after rejected update")
	}
}

func TestEditorDirtyFlagLifecycle(t *testing.T) {
	editor := NewEditor(Metadata{SelectedDishName: "Tacos", NumberOfServings: 1.0})

	if editor.Dirty() {
		t.Error("Fresh editor should not be dirty")
	}

	if _, err := editor.Stage(MetadataUpdate{Servings: floatPtr(3.0)}); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if !editor.Dirty() {
		t.Error("Editor should be dirty after staging")
	}

	editor.Clear()
	if editor.Dirty() {
		t.Error("Editor should not be dirty after Clear")
	}
	if editor.Commit().NumberOfServings != 3.0 {
		t.Error("Clear should keep staged values as the next baseline")
	}
}

func TestMetadataEncodeDecodeRoundTrip(t *testing.T) {
	in := Metadata{
		SelectedDishName:      "Bibimbap",
		SelectedServingSize:   "1 bowl",
		NumberOfServings:      1.5,
		ModifiedSincePrevious: true,
	}

	raw, err := EncodeMetadata(in)
	if err != nil {
		t.Fatalf("EncodeMetadata failed: %v", err)
	}
	out, err := DecodeMetadata(raw)
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if out != in {
		t.Errorf("Round trip mismatch: got %+v, want %+v", out, in)
	}
}
