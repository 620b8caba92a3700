package lifecycle

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Phase is the process lifecycle stage reported by /health.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseReady
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseDraining:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// State tracks the process phase and uptime. Owned by main and handed to the
// components that report on it.
type State struct {
	phase   atomic.Int32
	clock   clockwork.Clock
	started time.Time
}

// New returns a State in PhaseStarting.
func New(clock clockwork.Clock) *State {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &State{clock: clock, started: clock.Now()}
}

// MarkReady moves a starting process to ready. Has no effect once draining.
func (s *State) MarkReady() {
	s.phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseReady))
}

// BeginShutdown marks the process as draining. Call when SIGTERM/SIGINT is received.
func (s *State) BeginShutdown() {
	s.phase.Store(int32(PhaseDraining))
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	return Phase(s.phase.Load())
}

// IsShuttingDown returns true while draining; /health answers 503 so no new traffic arrives.
func (s *State) IsShuttingDown() bool {
	return s.Phase() == PhaseDraining
}

// Uptime returns time since New.
func (s *State) Uptime() time.Duration {
	return s.clock.Since(s.started)
}
