package supervisor

import "time"

// EventType represents the type of supervisor event.
type EventType int

const (
	// GenerationStarted is emitted once both goroutines of a generation run.
	GenerationStarted EventType = iota
	// RestartTriggered is emitted when a generation ends because restart was set.
	RestartTriggered
	// WorkerExited is emitted when a generation's polling worker returns.
	WorkerExited
	// GenerationStopped is emitted after a generation's goroutines joined.
	GenerationStopped
	// JoinTimedOut is emitted when a generation's goroutines failed to join.
	JoinTimedOut
)

// String returns the string representation of an EventType.
func (et EventType) String() string {
	switch et {
	case GenerationStarted:
		return "GenerationStarted"
	case RestartTriggered:
		return "RestartTriggered"
	case WorkerExited:
		return "WorkerExited"
	case GenerationStopped:
		return "GenerationStopped"
	case JoinTimedOut:
		return "JoinTimedOut"
	default:
		return "Unknown"
	}
}

// Event represents a supervisor lifecycle event.
type Event struct {
	// Time is when the event occurred.
	Time time.Time
	// Type is the type of event.
	Type EventType
	// Generation identifies the generation involved.
	Generation Generation
	// Attempts is the failed poll count, set on WorkerExited.
	Attempts int
	// Err is any error associated with the event.
	Err error
}

// EventHandler is a function that processes supervisor events.
// Handlers run inline, possibly from several goroutines at once, and must
// return quickly.
type EventHandler func(e Event)

// emitEvent sends an event to all registered event handlers.
func (s *Supervisor) emitEvent(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, handler := range s.eventHandlers {
		handler(e)
	}
}
