package orchestrator

import (
	"sync"
	"time"

	"loanflow/internal/models"
)

// RunState is the per-application accumulator. The outcome list only grows;
// recorded stages are never revised. The mutex covers the fan-out window
// where Credit and Income append concurrently.
type RunState struct {
	mu        sync.Mutex
	outcomes  []models.StageOutcome
	routing   models.RoutingClass
	startedAt time.Time
	terminal  bool
}

func NewRunState() *RunState {
	return &RunState{
		routing:   models.RouteStandard,
		startedAt: time.Now(),
	}
}

// Append records a stage outcome in completion order.
func (s *RunState) Append(outcome models.StageOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

// Outcomes returns a copy of the recorded outcomes in append order.
func (s *RunState) Outcomes() []models.StageOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.StageOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Outcome returns the recorded outcome for one stage.
func (s *RunState) Outcome(stage models.Stage) (models.StageOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return models.StageOutcome{}, false
}

func (s *RunState) SetRouting(route models.RoutingClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routing = route
}

func (s *RunState) Routing() models.RoutingClass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routing
}

func (s *RunState) StartedAt() time.Time {
	return s.startedAt
}

func (s *RunState) MarkTerminal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal = true
}

func (s *RunState) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}
