package models

// AnalysisState is the orchestrator's current stage in a diagnosis cycle.
type AnalysisState string

const (
	StateIdle            AnalysisState = "idle"
	StatePredicting      AnalysisState = "predicting"
	StateExplaining      AnalysisState = "explaining"
	StateGeneratingVoice AnalysisState = "generating-voice"
	StateComplete        AnalysisState = "complete"
	StateError           AnalysisState = "error"
)

// Valid reports whether s is one of the known states.
func (s AnalysisState) Valid() bool {
	switch s {
	case StateIdle, StatePredicting, StateExplaining, StateGeneratingVoice, StateComplete, StateError:
		return true
	}
	return false
}

// Busy reports whether a cycle is in flight.
func (s AnalysisState) Busy() bool {
	switch s {
	case StatePredicting, StateExplaining, StateGeneratingVoice:
		return true
	}
	return false
}

// Terminal reports whether s ends a cycle.
func (s AnalysisState) Terminal() bool {
	return s == StateComplete || s == StateError
}
