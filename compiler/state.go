package compiler

import (
	"sync"

	"json2video/types"
)

// State is where a compile is in its lifecycle
type State string

const (
	StateLoaded             State = "loaded"
	StateNarrationResolved  State = "narration_resolved"
	StateReferencesResolved State = "references_resolved"
	StateLayersAssembled    State = "layers_assembled"
	StatePlanned            State = "planned"
	StateRendered           State = "rendered"
	StateFailed             State = "failed"
	StateCleaned            State = "cleaned"
)

// Transition is reported to Options.OnState on every state change
type Transition struct {
	RunID string
	State State
	// Err is set on StateFailed
	Err *types.CompilationError
}

// run records one compile's progress
type run struct {
	id      string
	onState func(Transition)

	mu      sync.Mutex
	history []State
}

func (r *run) enter(s State) {
	r.mu.Lock()
	r.history = append(r.history, s)
	r.mu.Unlock()
	if r.onState != nil {
		r.onState(Transition{RunID: r.id, State: s})
	}
}

func (r *run) fail(cerr types.CompilationError) {
	r.mu.Lock()
	r.history = append(r.history, StateFailed)
	r.mu.Unlock()
	if r.onState != nil {
		r.onState(Transition{RunID: r.id, State: StateFailed, Err: &cerr})
	}
}
