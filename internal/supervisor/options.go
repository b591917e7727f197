package supervisor

import (
	"log/slog"
	"time"
)

// defaultJoinTimeout bounds the wait for a generation's goroutines.
const defaultJoinTimeout = 30 * time.Second

// Option configures a Supervisor during creation.
type Option func(*Supervisor)

// WithLogger sets the logger generations derive their loggers from.
func WithLogger(log *slog.Logger) Option {
	return func(s *Supervisor) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEventHandler adds an event handler to receive supervisor events.
// Multiple handlers can be registered by calling this option multiple times.
//
// Example:
//
//	sup, err := supervisor.New(cfg,
//	    supervisor.WithEventHandler(func(e supervisor.Event) {
//	        log.Printf("[%s] generation %d: %v", e.Type, e.Generation.Number, e.Err)
//	    }),
//	)
func WithEventHandler(handler EventHandler) Option {
	return func(s *Supervisor) {
		s.eventHandlers = append(s.eventHandlers, handler)
	}
}

// WithJoinTimeout sets how long a generation waits for its watcher and worker
// to return after stop. If timeout is <= 0, the default of 30 seconds is used.
func WithJoinTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) {
		if timeout <= 0 {
			timeout = defaultJoinTimeout
		}
		s.joinTimeout = timeout
	}
}
