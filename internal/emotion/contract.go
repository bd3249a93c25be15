// Package emotion defines the external emotional-state contract the
// Autonomy Coordinator reads. The emotional model itself — decay,
// momentum accumulation, persistence — is out of scope; this package holds
// only the read-only interface and an in-memory stub useful for local
// development and tests.
package emotion

import (
	"sync"
	"time"

	"github.com/mystiatech/conductor/internal/conductor"
)

// LonelinessFloor and IntensityFloor are the minimum values the external
// emotional model is contractually expected to never drop an intensity
// below, per the data model's clamping rule.
const (
	LonelinessFloor = 0.3
	IntensityFloor  = 0.1
)

// Source is the read-only contract the Autonomy Coordinator consumes.
type Source interface {
	State(userID string) (conductor.EmotionalState, bool)
}

// Stub is an in-memory Source for local development and tests; it holds
// whatever state is explicitly set and never decays or evolves it.
type Stub struct {
	mu     sync.RWMutex
	states map[string]conductor.EmotionalState
}

// NewStub constructs an empty in-memory emotional state source.
func NewStub() *Stub {
	return &Stub{states: map[string]conductor.EmotionalState{}}
}

// Set installs a snapshot for a user, clamping every intensity to its floor.
func (s *Stub) Set(state conductor.EmotionalState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clamped := map[conductor.EmotionalIntensity]float64{}
	for k, v := range state.Intensities {
		floor := IntensityFloor
		if k == conductor.EmotionLoneliness {
			floor = LonelinessFloor
		}
		if v < floor {
			v = floor
		}
		if v > 1.0 {
			v = 1.0
		}
		clamped[k] = v
	}
	state.Intensities = clamped
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	s.states[state.UserID] = state
}

// State returns the current snapshot for a user, if any.
func (s *Stub) State(userID string) (conductor.EmotionalState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	return st, ok
}
