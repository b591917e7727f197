// Package supervisor runs the bot in generations.
//
// A generation is one file watcher plus one polling worker sharing a fresh
// set of control signals. It ends when either signal latch is set: a watched
// file changed (restart), the worker gave up or returned (stop), or the
// operator asked. After both goroutines have joined, a restart begins the
// next generation with new signals, a new long-poll client and reset retry
// state; anything else ends Run.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/backoff"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/poller"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/signals"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/watcher"
)

// ///////////////////////////////////////////////
// Configuration
// ///////////////////////////////////////////////

// Generation identifies one run of the watcher and worker pair.
type Generation struct {
	// Number counts generations from 1 within a Run.
	Number int `json:"number"`
	// ID is a random UUID, unique across process restarts.
	ID string `json:"id"`
}

// PollerFactory builds the long-poll client for a generation. It is called
// once per generation, after the file watcher has been opened.
type PollerFactory func(gen Generation) (poller.LongPoller, error)

// Tuning is the part of the worker's behavior that may change between
// generations.
type Tuning struct {
	// Policy bounds the worker's retries.
	Policy backoff.Policy
	// PollTimeout is passed to every Poll call.
	PollTimeout time.Duration
	// AllowedUpdates is passed to every Poll call.
	AllowedUpdates []string
}

// ReloadFunc returns the tuning for a generation. It is called at the start
// of every generation, before the file watcher is opened and before the
// generation's PollerFactory call.
type ReloadFunc func(gen Generation) (Tuning, error)

// Config describes what every generation runs.
type Config struct {
	// WatchDir is the directory observed for changes.
	WatchDir string
	// WatchSet holds the file names whose modification triggers a restart.
	WatchSet watcher.Set
	// Watch selects the watcher mode. Its Logger is ignored.
	Watch watcher.Options
	// Policy bounds the worker's retries.
	Policy backoff.Policy
	// PollTimeout is passed to every Poll call.
	PollTimeout time.Duration
	// AllowedUpdates is passed to every Poll call.
	AllowedUpdates []string
	// NewPoller builds each generation's long-poll client.
	NewPoller PollerFactory
	// Reload, when set, replaces Policy, PollTimeout and AllowedUpdates for
	// each generation with the values it returns.
	Reload ReloadFunc
}

// ///////////////////////////////////////////////
// Supervisor
// ///////////////////////////////////////////////

// Supervisor runs generations one at a time.
type Supervisor struct {
	cfg           Config
	log           *slog.Logger
	joinTimeout   time.Duration
	eventHandlers []EventHandler

	running atomic.Bool
	// stopAll makes the current generation the last one.
	stopAll atomic.Bool

	mu       sync.Mutex
	cur      *generation
	restarts int
}

// generation is the live state of the active generation.
type generation struct {
	Generation
	sig     *signals.Signals
	worker  *poller.Worker
	started time.Time
}

// New validates cfg and creates a Supervisor.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if cfg.NewPoller == nil {
		return nil, errors.New("supervisor: NewPoller is required")
	}
	if cfg.WatchSet.Len() == 0 {
		return nil, errors.New("supervisor: watch set is empty")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	s := &Supervisor{
		cfg:         cfg,
		log:         slog.Default(),
		joinTimeout: defaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts generations until one ends without a restart request, the
// context is cancelled, or a generation fails to start or to stop.
//
// Cancelling ctx is an operator interrupt: the active generation is unwound
// and joined, Run returns nil and no further generation starts. A watcher or
// client construction failure and ErrJoinTimeout are returned as errors.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	for n := 1; ; n++ {
		if ctx.Err() != nil || s.stopAll.Load() {
			return nil
		}
		restart, err := s.runGeneration(ctx, n)
		if err != nil {
			return err
		}
		if !restart || s.stopAll.Load() {
			return nil
		}
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		s.log.Info("restarting bot", "next_generation", n+1)
	}
}

// runGeneration runs generation n to completion and reports whether the next
// generation should start.
func (s *Supervisor) runGeneration(ctx context.Context, n int) (bool, error) {
	gen := Generation{Number: n, ID: uuid.New().String()}
	log := s.log.With("generation", n, "generation_id", gen.ID)
	sig := signals.New()

	tun, err := s.tuning(gen)
	if err != nil {
		return false, fmt.Errorf("generation %d: reload settings: %w", n, err)
	}

	wopts := s.cfg.Watch
	wopts.Logger = log.With("component", "watcher")
	w, err := watcher.New(s.cfg.WatchDir, s.cfg.WatchSet, wopts)
	if err != nil {
		return false, fmt.Errorf("generation %d: start file watcher: %w", n, err)
	}
	lp, err := s.cfg.NewPoller(gen)
	if err != nil {
		w.Close()
		return false, fmt.Errorf("generation %d: create long-poll client: %w", n, err)
	}
	worker := poller.New(poller.Options{
		Policy:         tun.Policy,
		PollTimeout:    tun.PollTimeout,
		AllowedUpdates: tun.AllowedUpdates,
		Logger:         log.With("component", "poller"),
	})

	s.setCurrent(&generation{Generation: gen, sig: sig, worker: worker, started: time.Now()})
	defer s.setCurrent(nil)

	var ready, joined sync.WaitGroup
	ready.Add(2)
	joined.Add(2)

	go func() {
		defer joined.Done()
		defer s.recoverInto(log, sig, "file watcher")
		ready.Done()
		w.Run(sig, sig.StopRequested)
	}()
	go func() {
		defer joined.Done()
		// Whatever ends the worker ends the generation.
		defer sig.SetStop()
		defer s.recoverInto(log, sig, "polling worker")
		ready.Done()
		res := worker.Run(lp)
		s.emitEvent(Event{Type: WorkerExited, Generation: gen, Attempts: res.Attempts, Err: res.Err})
	}()

	ready.Wait()
	log.Info("generation started", "watch_dir", w.Dir(), "watch_files", s.cfg.WatchSet.Entries())
	s.emitEvent(Event{Type: GenerationStarted, Generation: gen})

	interrupted := false
	select {
	case <-sig.Done():
	case <-ctx.Done():
		interrupted = true
		log.Info("interrupt received, shutting down")
		sig.SetStop()
		sig.SetRestart()
	}

	if sig.RestartRequested() {
		sig.SetStop()
		if !interrupted {
			log.Info("restart requested, stopping generation")
			s.emitEvent(Event{Type: RestartTriggered, Generation: gen})
		}
	} else {
		log.Info("stop requested, stopping generation")
	}

	lp.RequestStop()
	if err := s.join(&joined); err != nil {
		log.Error("generation did not stop in time", "timeout", s.joinTimeout)
		s.emitEvent(Event{Type: JoinTimedOut, Generation: gen, Err: err})
		return false, fmt.Errorf("generation %d: %w", n, err)
	}

	log.Info("generation stopped", "worker_state", worker.State(), "failed_attempts", worker.Attempts())
	s.emitEvent(Event{Type: GenerationStopped, Generation: gen})

	return sig.RestartRequested() && !interrupted, nil
}

// join waits for wg up to the join timeout.
func (s *Supervisor) join(wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	t := time.NewTimer(s.joinTimeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrJoinTimeout
	}
}

// recoverInto turns a panic in a generation goroutine into a stop request.
func (s *Supervisor) recoverInto(log *slog.Logger, sig *signals.Signals, what string) {
	if r := recover(); r != nil {
		log.Error(what+" panicked", "panic", r, "stack", string(debug.Stack()))
		sig.SetStop()
	}
}

// tuning returns the worker settings for gen.
func (s *Supervisor) tuning(gen Generation) (Tuning, error) {
	if s.cfg.Reload == nil {
		return Tuning{
			Policy:         s.cfg.Policy,
			PollTimeout:    s.cfg.PollTimeout,
			AllowedUpdates: s.cfg.AllowedUpdates,
		}, nil
	}
	tun, err := s.cfg.Reload(gen)
	if err != nil {
		return Tuning{}, err
	}
	if err := tun.Policy.Validate(); err != nil {
		return Tuning{}, err
	}
	return tun, nil
}

// setCurrent publishes g as the active generation. A RequestStop that came in
// while g was being built is applied to g here.
func (s *Supervisor) setCurrent(g *generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = g
	if g != nil && s.stopAll.Load() {
		g.sig.SetStop()
	}
}

// ///////////////////////////////////////////////
// External control
// ///////////////////////////////////////////////

// RequestRestart sets the restart latch of the active generation. It reports
// false when no generation is active.
func (s *Supervisor) RequestRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return false
	}
	s.log.Info("restart requested externally", "generation", s.cur.Number)
	s.cur.sig.SetRestart()
	return true
}

// RequestStop ends the active generation and prevents any further one, even
// if a restart is already pending. It is permanent for the Supervisor.
func (s *Supervisor) RequestStop() {
	s.stopAll.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.log.Info("stop requested externally", "generation", s.cur.Number)
		s.cur.sig.SetStop()
	}
}

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is a point-in-time view of the supervisor.
type Status struct {
	// Running reports whether a generation is active.
	Running bool `json:"running"`
	// Generation is the active generation, zero when none.
	Generation Generation `json:"generation"`
	// StartedAt is when the active generation started.
	StartedAt time.Time `json:"started_at,omitzero"`
	// Signals is the latch state of the active generation.
	Signals string `json:"signals,omitempty"`
	// WorkerState is the retry state machine step of the active worker.
	WorkerState string `json:"worker_state,omitempty"`
	// FailedAttempts is the active worker's consecutive failed polls.
	FailedAttempts int `json:"failed_attempts"`
	// Restarts counts generations ended by a restart since Run began.
	Restarts int `json:"restarts"`
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Restarts: s.restarts}
	if s.cur == nil {
		return st
	}
	st.Running = true
	st.Generation = s.cur.Generation
	st.StartedAt = s.cur.started
	st.Signals = s.cur.sig.State().String()
	st.WorkerState = s.cur.worker.State().String()
	st.FailedAttempts = s.cur.worker.Attempts()
	return st
}
