package analysis

// State is the orchestrator state persisted on the record row. It tracks the
// lifecycle of the newest analysis attempt; committed iterations are never
// affected by state changes.
type State string

const (
	StateIdle                 State = "idle"
	StatePredicting           State = "predicting"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAnalyzing            State = "analyzing"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// InFlight reports whether an analyzer invocation is running for this state.
// Pollers keep polling while InFlight is true.
func (s State) InFlight() bool {
	return s == StatePredicting || s == StateAnalyzing
}

// CanPredict reports whether the record may enter the Predicting phase.
// Prediction is only allowed before any iteration has been committed; a
// failed first attempt stays predictable.
func (s State) CanPredict() bool {
	return s == StateIdle || s == StateFailed
}

// CanAnalyze reports whether the record may enter the Analyzing phase for a
// refinement. Requires a committed first iteration.
func (s State) CanAnalyze() bool {
	return s == StateAwaitingConfirmation || s == StateCompleted || s == StateFailed
}

// SchemaKind selects the analyzer invocation mode. Full also produces dish
// predictions and is used exactly once per record; Brief reuses the cached
// predictions and only re-estimates nutrition values.
type SchemaKind string

const (
	SchemaFull  SchemaKind = "full"
	SchemaBrief SchemaKind = "brief"
)
