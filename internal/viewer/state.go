package viewer

import "github.com/drfirst/go-summaryview/internal/fhir/r4"

// Phase names the stage of a viewer's fetch cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is the viewer's fetch state. A bundle and a failure message are
// never present together; build values with Idle, Loading, Loaded and Failed.
type State struct {
	phase     Phase
	patientID string
	bundle    *r4.Bundle
	message   string
}

// Idle is the state before the first lookup.
func Idle() State { return State{phase: PhaseIdle} }

// Loading is the state while a lookup for patientID is in flight.
func Loading(patientID string) State {
	return State{phase: PhaseLoading, patientID: patientID}
}

// Loaded holds a successfully fetched bundle.
func Loaded(patientID string, b *r4.Bundle) State {
	return State{phase: PhaseLoaded, patientID: patientID, bundle: b}
}

// Failed holds the message of the failed lookup.
func Failed(patientID, message string) State {
	return State{phase: PhaseFailed, patientID: patientID, message: message}
}

func (s State) Phase() Phase { return s.phase }

// PatientID is the id of the current or last lookup.
func (s State) PatientID() string { return s.patientID }

// IsLoading reports whether a lookup is in flight.
func (s State) IsLoading() bool { return s.phase == PhaseLoading }

// Bundle returns the loaded bundle.
func (s State) Bundle() (*r4.Bundle, bool) {
	if s.phase != PhaseLoaded {
		return nil, false
	}
	return s.bundle, true
}

// Failure returns the error message of a failed lookup.
func (s State) Failure() (string, bool) {
	if s.phase != PhaseFailed {
		return "", false
	}
	return s.message, true
}
