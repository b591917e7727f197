// Package poller runs a blocking long-poll call under a bounded exponential
// retry policy.
//
// The worker never inspects the errors returned by the long-poll call: every
// failure is retried the same way until the attempt budget is spent. The only
// way to end a healthy worker early is the long-poll client's own
// RequestStop operation, which makes the pending Poll return nil.
package poller

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/backoff"
)

// ///////////////////////////////////////////////
// Long-poll contract
// ///////////////////////////////////////////////

// LongPoller is the long-poll client driven by a [Worker].
type LongPoller interface {
	// Poll blocks, delivering events to the client's handler. It returns nil
	// only after RequestStop has been called, and an error on any network or
	// protocol failure.
	Poll(timeout time.Duration, allowedUpdates []string) error
	// RequestStop makes a pending or future Poll return nil promptly.
	RequestStop()
	// Stopping is closed once RequestStop has been called.
	Stopping() <-chan struct{}
}

// ///////////////////////////////////////////////
// States
// ///////////////////////////////////////////////

// State is a step of the worker's retry state machine.
type State int32

const (
	// Idle is the state of a worker whose Run has not started.
	Idle State = iota
	// Attempting means a Poll call is in flight.
	Attempting
	// Sleeping means the worker is waiting out a backoff delay.
	Sleeping
	// Success is terminal: Poll returned nil.
	Success
	// Exhausted is terminal: MaxAttempts polls all failed.
	Exhausted
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case Sleeping:
		return "sleeping"
	case Success:
		return "success"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == Success || s == Exhausted
}

// ///////////////////////////////////////////////
// Worker
// ///////////////////////////////////////////////

// Options configures a [Worker].
type Options struct {
	// Policy bounds the retry loop.
	Policy backoff.Policy
	// PollTimeout is passed to every Poll call.
	PollTimeout time.Duration
	// AllowedUpdates is passed to every Poll call.
	AllowedUpdates []string
	// Logger receives retry and exhaustion records. Defaults to slog.Default().
	Logger *slog.Logger
}

// Result describes how a [Worker.Run] ended.
type Result struct {
	// State is Success or Exhausted.
	State State
	// Attempts is the number of failed Poll calls.
	Attempts int
	// Err is the last Poll error, nil on Success.
	Err error
}

// Worker drives one LongPoller through the retry state machine. A Worker is
// meant for a single generation; its retry state starts from zero on every Run.
type Worker struct {
	opts Options
	log  *slog.Logger

	state    atomic.Int32
	attempts atomic.Int64

	// sleep waits d or until wake is closed. Replaced in tests.
	sleep func(d time.Duration, wake <-chan struct{})
}

// New creates a Worker.
func New(opts Options) *Worker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		opts:  opts,
		log:   log,
		sleep: sleepOrWake,
	}
}

// State returns the current state of the retry state machine.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Attempts returns the number of failed Poll calls in the current Run.
func (w *Worker) Attempts() int {
	return int(w.attempts.Load())
}

// Run polls lp until it returns nil or MaxAttempts calls have failed.
// It blocks for the lifetime of the polling session.
func (w *Worker) Run(lp LongPoller) Result {
	policy := w.opts.Policy
	delay := policy.Base
	attempts := 0
	w.attempts.Store(0)

	for {
		w.setState(Attempting)
		w.log.Info("starting long poll", "attempt", attempts+1, "max_attempts", policy.MaxAttempts)

		err := w.poll(lp)
		if err == nil {
			w.setState(Success)
			w.log.Info("long poll stopped", "failed_attempts", attempts)
			return Result{State: Success, Attempts: attempts}
		}

		attempts++
		w.attempts.Store(int64(attempts))

		if attempts >= policy.MaxAttempts {
			w.setState(Exhausted)
			w.log.Error("retry budget exhausted, polling stopped",
				"attempts", attempts,
				"error", err,
			)
			return Result{State: Exhausted, Attempts: attempts, Err: err}
		}

		w.log.Warn("long poll failed, retrying",
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		w.setState(Sleeping)
		w.sleep(delay, lp.Stopping())
		delay = backoff.NextDelay(delay, policy.Base, policy.Max)
	}
}

// poll calls lp.Poll, converting a panic into an ordinary retryable error.
func (w *Worker) poll(lp LongPoller) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("long poll panic: %v", r)
		}
	}()
	return lp.Poll(w.opts.PollTimeout, w.opts.AllowedUpdates)
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// sleepOrWake blocks for d, returning early when wake is closed.
func sleepOrWake(d time.Duration, wake <-chan struct{}) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-wake:
	}
}
