package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	MinServings = 0.1
	MaxServings = 10.0
)

// Metadata holds the user-facing dish description attached to an iteration.
// It is staged by the editor and becomes immutable once copied into a
// committed iteration.
type Metadata struct {
	SelectedDishName      string  `json:"selectedDishName"`
	SelectedServingSize   string  `json:"selectedServingSize,omitempty"`
	NumberOfServings      float64 `json:"numberOfServings"`
	ModifiedSincePrevious bool    `json:"modifiedSincePrevious"`
}

// MetadataUpdate is a partial correction supplied by the user. Nil fields are
// left untouched by staging.
type MetadataUpdate struct {
	DishName    *string  `json:"dishName,omitempty"`
	ServingSize *string  `json:"servingSize,omitempty"`
	Servings    *float64 `json:"servings,omitempty"`
}

// ClampServings snaps a serving count into [MinServings, MaxServings].
func ClampServings(v float64) float64 {
	if v < MinServings {
		return MinServings
	}
	if v > MaxServings {
		return MaxServings
	}
	return v
}

// Editor stages user corrections against a record's current metadata before
// a refinement run. Staged edits survive failed analyses; Clear is called
// only after a new iteration has been committed with the staged snapshot.
type Editor struct {
	staged Metadata
}

// NewEditor seeds an editor from the metadata the next refinement starts
// from, normally the current iteration's committed metadata or a previously
// staged, not yet committed snapshot.
func NewEditor(current Metadata) *Editor {
	return &Editor{staged: current}
}

// Stage validates and merges a partial update into the pending metadata.
// Serving counts must be finite and are clamped into [0.1, 10.0]; empty dish
// or serving-size strings are rejected. Any accepted update marks the staged
// metadata as modified.
func (e *Editor) Stage(update MetadataUpdate) (Metadata, error) {
	if update.DishName == nil && update.ServingSize == nil && update.Servings == nil {
		return Metadata{}, &ValidationError{Field: "update", Reason: "no fields supplied"}
	}

	if update.DishName != nil {
		name := strings.TrimSpace(*update.DishName)
		if name == "" {
			return Metadata{}, &ValidationError{Field: "dishName", Reason: "must not be empty"}
		}
		e.staged.SelectedDishName = name
	}
	if update.ServingSize != nil {
		size := strings.TrimSpace(*update.ServingSize)
		if size == "" {
			return Metadata{}, &ValidationError{Field: "servingSize", Reason: "must not be empty"}
		}
		e.staged.SelectedServingSize = size
	}
	if update.Servings != nil {
		v := *update.Servings
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Metadata{}, &ValidationError{Field: "servings", Reason: "must be a finite number"}
		}
		e.staged.NumberOfServings = ClampServings(v)
	}

	e.staged.ModifiedSincePrevious = true
	return e.staged, nil
}

// Commit returns the staged snapshot for the orchestrator to consume. The
// dirty flag is not cleared here; it is cleared by Clear once the orchestrator
// has committed an iteration built from this snapshot.
func (e *Editor) Commit() Metadata {
	return e.staged
}

// Dirty reports whether the staged metadata differs from the last committed
// iteration.
func (e *Editor) Dirty() bool {
	return e.staged.ModifiedSincePrevious
}

// Clear resets the dirty flag after a successful iteration commit. The staged
// values themselves are kept as the baseline for the next edit.
func (e *Editor) Clear() {
	e.staged.ModifiedSincePrevious = false
}

// EncodeMetadata serializes a staged metadata snapshot for persistence.
func EncodeMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMetadata deserializes a persisted staged metadata snapshot.
func DecodeMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("malformed staged metadata: %w", err)
	}
	return m, nil
}
