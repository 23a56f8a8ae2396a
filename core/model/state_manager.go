// Package model provides the Loaded/Compiled state machine shared by models.
package model

import (
	"sync"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// State is the lifecycle state of a model.
type State int

const (
	// Loaded: parsed, served by the interpreter.
	Loaded State = iota
	// Compiled: a compiled entry point is cached and serves predictions.
	Compiled
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "Loaded"
	case Compiled:
		return "Compiled"
	default:
		return "Unknown"
	}
}

// StateManager guards the Loaded -> Compiled transition in a thread-safe
// manner. The transition happens at most once and never goes back.
type StateManager struct {
	mu    sync.RWMutex
	state State

	nFeatures int
	nOutputs  int
}

// NewStateManager creates a manager in the Loaded state.
func NewStateManager(nFeatures, nOutputs int) *StateManager {
	return &StateManager{state: Loaded, nFeatures: nFeatures, nOutputs: nOutputs}
}

// State returns the current state.
func (s *StateManager) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsCompiled returns whether the model has been compiled.
func (s *StateManager) IsCompiled() bool {
	return s.State() == Compiled
}

// RequireCompiled returns a NotCompiledError naming op if the model is still Loaded.
func (s *StateManager) RequireCompiled(op string) error {
	if !s.IsCompiled() {
		return errors.NewNotCompiledError(op)
	}
	return nil
}

// Compile runs fn under the write lock if the model is Loaded and moves it
// to Compiled when fn succeeds. Once Compiled, fn is not called again and
// Compile reports false. A failing fn leaves the state Loaded.
func (s *StateManager) Compile(fn func() error) (ran bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Compiled {
		return false, nil
	}
	if err := fn(); err != nil {
		return true, err
	}
	s.state = Compiled
	return true, nil
}

// ModelState is a snapshot of a model's lifecycle state and shape, as
// reported by Model.Info and the info command.
type ModelState struct {
	State     string `json:"state"`
	NFeatures int    `json:"n_features"`
	NOutputs  int    `json:"n_outputs"`
}

// GetState returns the current state as a ModelState struct.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{State: s.state.String(), NFeatures: s.nFeatures, NOutputs: s.nOutputs}
}

// WithState is a helper function that executes a function with the state locked for reading.
func (s *StateManager) WithState(fn func(State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}
