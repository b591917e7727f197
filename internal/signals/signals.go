// Package signals provides the per-generation stop and restart latches shared
// between the supervisor, the file watcher, and the polling worker.
//
// A [Signals] value is created fresh for every generation and never reset.
// Both flags are write-once latches: setting a flag that is already set has no
// further effect. Waiters block on [Signals.Done] instead of polling the flags.
package signals

import (
	"sync"
	"sync/atomic"
)

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// State is the tagged view of a [Signals] value.
type State int

const (
	// Running means neither latch has been set.
	Running State = iota
	// StopRequested means stop is set and restart is not.
	StopRequested
	// RestartRequested means restart is set, regardless of stop.
	RestartRequested
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	case RestartRequested:
		return "restart_requested"
	default:
		return "unknown"
	}
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

// Signals holds the stop and restart latches for one generation.
// The zero value is not usable; construct with [New].
type Signals struct {
	stop    atomic.Bool
	restart atomic.Bool

	// done is closed the first time either latch is set.
	done chan struct{}
	once sync.Once
}

// New returns a Signals value with both latches clear.
func New() *Signals {
	return &Signals{done: make(chan struct{})}
}

// SetStop sets the stop latch.
func (s *Signals) SetStop() {
	s.stop.Store(true)
	s.fire()
}

// SetRestart sets the restart latch.
func (s *Signals) SetRestart() {
	s.restart.Store(true)
	s.fire()
}

// StopRequested reports whether the stop latch is set.
func (s *Signals) StopRequested() bool {
	return s.stop.Load()
}

// RestartRequested reports whether the restart latch is set.
func (s *Signals) RestartRequested() bool {
	return s.restart.Load()
}

// Done returns a channel that is closed once either latch has been set.
func (s *Signals) Done() <-chan struct{} {
	return s.done
}

// State returns the combined latch state. Restart takes precedence over stop
// because the supervisor always sets stop on the way out of a restart.
func (s *Signals) State() State {
	switch {
	case s.restart.Load():
		return RestartRequested
	case s.stop.Load():
		return StopRequested
	default:
		return Running
	}
}

func (s *Signals) fire() {
	s.once.Do(func() { close(s.done) })
}
