package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/backoff"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/poller"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/watcher"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// scriptedPoller fails its first failFirst polls (all of them when negative),
// then blocks until RequestStop. With returnNil it returns nil unprompted;
// with ignoreStop it blocks until release is closed regardless of RequestStop.
type scriptedPoller struct {
	failFirst  int
	returnNil  bool
	ignoreStop bool
	release    chan struct{}

	h *harness

	calls      atomic.Int32
	stopCalled atomic.Bool
	stopping   chan struct{}
	once       sync.Once

	mu      sync.Mutex
	allowed []string
}

func (p *scriptedPoller) Poll(_ time.Duration, allowed []string) error {
	n := int(p.calls.Add(1))
	p.mu.Lock()
	p.allowed = allowed
	p.mu.Unlock()
	p.h.enter()
	defer p.h.active.Add(-1)

	if p.ignoreStop {
		<-p.release
		return nil
	}
	select {
	case <-p.stopping:
		return nil
	default:
	}
	if p.failFirst < 0 || n <= p.failFirst {
		return errors.New("network is unreachable")
	}
	if p.returnNil {
		return nil
	}
	<-p.stopping
	return nil
}

func (p *scriptedPoller) RequestStop() {
	p.stopCalled.Store(true)
	p.once.Do(func() { close(p.stopping) })
}

func (p *scriptedPoller) Stopping() <-chan struct{} { return p.stopping }

func (p *scriptedPoller) lastAllowed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allowed
}

type harness struct {
	t   *testing.T
	dir string
	sup *Supervisor

	mu      sync.Mutex
	pollers []*scriptedPoller
	events  []Event

	active    atomic.Int32
	maxActive atomic.Int32
}

// enter records one more concurrent Poll and tracks the maximum.
func (h *harness) enter() {
	n := h.active.Add(1)
	for {
		m := h.maxActive.Load()
		if n <= m || h.maxActive.CompareAndSwap(m, n) {
			return
		}
	}
}

var testPolicy = backoff.Policy{Base: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxAttempts: 5}

// newHarness builds a Supervisor watching bot.py in a temp dir. script
// configures the poller of each generation.
func newHarness(t *testing.T, script func(gen int, p *scriptedPoller), opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, dir: t.TempDir()}
	if err := os.WriteFile(filepath.Join(h.dir, "bot.py"), []byte("v0"), 0o644); err != nil {
		t.Fatalf("write bot.py: %v", err)
	}
	set, err := watcher.NewSet([]string{"bot.py"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	cfg := Config{
		WatchDir:    h.dir,
		WatchSet:    set,
		Policy:      testPolicy,
		PollTimeout: time.Second,
		NewPoller: func(gen Generation) (poller.LongPoller, error) {
			p := &scriptedPoller{h: h, stopping: make(chan struct{}), release: make(chan struct{})}
			if script != nil {
				script(gen.Number, p)
			}
			h.mu.Lock()
			h.pollers = append(h.pollers, p)
			h.mu.Unlock()
			return p, nil
		},
	}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEventHandler(func(e Event) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, e)
		}),
	}, opts...)

	h.sup, err = New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.sup.Run(ctx) }()
	return done
}

func (h *harness) poller(i int) *scriptedPoller {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.pollers) {
		return nil
	}
	return h.pollers[i]
}

func (h *harness) generations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pollers)
}

func (h *harness) eventsOf(typ EventType) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) touch(content string) {
	h.t.Helper()
	if err := os.WriteFile(filepath.Join(h.dir, "bot.py"), []byte(content), 0o644); err != nil {
		h.t.Fatalf("write bot.py: %v", err)
	}
}

// waitRunning waits until generation n is active with its worker polling.
func (h *harness) waitRunning(n int) {
	h.t.Helper()
	waitFor(h.t, func() bool {
		st := h.sup.Status()
		return st.Running && st.Generation.Number == n && len(h.eventsOf(GenerationStarted)) >= n
	}, "generation to start")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// ///////////////////////////////////////////////
// Restart on modification
// ///////////////////////////////////////////////

func TestRestartOnWatchedFileModification(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	h := newHarness(t, func(gen int, p *scriptedPoller) {
		if gen == 1 {
			p.failFirst = 2
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)

	h.waitRunning(1)
	waitFor(t, func() bool { return h.poller(0).calls.Load() == 3 }, "two failures then a blocking poll")
	if got := h.sup.Status().FailedAttempts; got != 2 {
		t.Fatalf("FailedAttempts = %d, want 2 before restart", got)
	}

	h.touch("v1")

	h.waitRunning(2)
	if !h.poller(0).stopCalled.Load() {
		t.Error("RequestStop was not called on the first generation's client")
	}
	waitFor(t, func() bool { return h.poller(1).calls.Load() >= 1 }, "second generation to poll")
	st := h.sup.Status()
	if st.FailedAttempts != 0 {
		t.Errorf("FailedAttempts = %d in new generation, want 0", st.FailedAttempts)
	}
	if st.Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", st.Restarts)
	}
	if ev := h.eventsOf(RestartTriggered); len(ev) != 1 || ev[0].Generation.Number != 1 {
		t.Errorf("RestartTriggered events = %+v", ev)
	}

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v, want nil after interrupt", err)
	}
	if h.maxActive.Load() > 1 {
		t.Errorf("%d polls ran at once, want at most 1", h.maxActive.Load())
	}
}

func TestRapidModificationsRestartOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)

	h.waitRunning(1)
	for _, v := range []string{"v1", "v2", "v3"} {
		h.touch(v)
	}

	h.waitRunning(2)
	time.Sleep(300 * time.Millisecond)
	if n := h.generations(); n != 2 {
		t.Errorf("started %d generations, want exactly 2", n)
	}

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func TestUnwatchedModificationIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)

	h.waitRunning(1)
	if err := os.WriteFile(filepath.Join(h.dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := h.generations(); n != 1 {
		t.Errorf("unwatched write started generation %d", n)
	}

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

// ///////////////////////////////////////////////
// Ending a Run
// ///////////////////////////////////////////////

func TestInterruptReturnsNilWithoutNewGeneration(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	h.waitRunning(1)
	cancel()

	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if n := h.generations(); n != 1 {
		t.Errorf("started %d generations, want 1", n)
	}
	if !h.poller(0).stopCalled.Load() {
		t.Error("RequestStop not called on interrupt")
	}
	if ev := h.eventsOf(RestartTriggered); len(ev) != 0 {
		t.Errorf("interrupt reported as restart: %+v", ev)
	}
	if ev := h.eventsOf(GenerationStopped); len(ev) != 1 {
		t.Errorf("GenerationStopped events = %d, want 1", len(ev))
	}
	if h.sup.Status().Running {
		t.Error("Status().Running after Run returned")
	}
}

func TestWorkerExitEndsRun(t *testing.T) {
	tests := []struct {
		name      string
		script    func(int, *scriptedPoller)
		wantCalls int32
		wantErr   bool
	}{
		{"exhaustion", func(_ int, p *scriptedPoller) { p.failFirst = -1 }, 5, true},
		{"unprompted return", func(_ int, p *scriptedPoller) { p.returnNil = true }, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.script)
			done := h.start(context.Background())

			if err := waitResult(t, done); err != nil {
				t.Fatalf("Run = %v, want nil", err)
			}
			if n := h.generations(); n != 1 {
				t.Errorf("started %d generations, want 1", n)
			}
			if got := h.poller(0).calls.Load(); got != tt.wantCalls {
				t.Errorf("Poll called %d times, want %d", got, tt.wantCalls)
			}
			ev := h.eventsOf(WorkerExited)
			if len(ev) != 1 {
				t.Fatalf("WorkerExited events = %d, want 1", len(ev))
			}
			if (ev[0].Err != nil) != tt.wantErr {
				t.Errorf("WorkerExited.Err = %v, wantErr %v", ev[0].Err, tt.wantErr)
			}
		})
	}
}

func TestJoinTimeoutIsFatal(t *testing.T) {
	var stuck *scriptedPoller
	h := newHarness(t, func(_ int, p *scriptedPoller) {
		p.ignoreStop = true
		stuck = p
	}, WithJoinTimeout(100*time.Millisecond))
	t.Cleanup(func() { close(stuck.release) })

	done := h.start(context.Background())
	h.waitRunning(1)
	waitFor(t, func() bool { return h.active.Load() == 1 }, "stuck poll")
	h.sup.RequestRestart()

	err := waitResult(t, done)
	if !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("Run = %v, want ErrJoinTimeout", err)
	}
	if n := h.generations(); n != 1 {
		t.Errorf("started %d generations after join timeout, want 1", n)
	}
	if ev := h.eventsOf(JoinTimedOut); len(ev) != 1 {
		t.Errorf("JoinTimedOut events = %d, want 1", len(ev))
	}
}

func TestWatcherStartupFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.cfg.WatchDir = filepath.Join(h.dir, "missing")

	err := waitResult(t, h.start(context.Background()))
	if err == nil {
		t.Fatal("expected watcher startup error")
	}
	if n := h.generations(); n != 0 {
		t.Errorf("long-poll client built %d times after watcher failure", n)
	}
}

func TestPollerFactoryFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("key file missing")
	h.sup.cfg.NewPoller = func(Generation) (poller.LongPoller, error) { return nil, boom }

	err := waitResult(t, h.start(context.Background()))
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
}

func TestReloadTuningPerGeneration(t *testing.T) {
	h := newHarness(t, nil)
	var reloads atomic.Int32
	h.sup.cfg.Reload = func(gen Generation) (Tuning, error) {
		reloads.Add(1)
		return Tuning{
			Policy:         testPolicy,
			PollTimeout:    time.Second,
			AllowedUpdates: []string{fmt.Sprintf("kind%d", gen.Number)},
		}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := h.start(ctx)
	h.waitRunning(1)
	if !h.sup.RequestRestart() {
		t.Fatal("RequestRestart = false during a generation")
	}
	h.waitRunning(2)
	waitFor(t, func() bool { return h.poller(1).calls.Load() > 0 }, "second generation to poll")

	for i, want := range []string{"kind1", "kind2"} {
		got := h.poller(i).lastAllowed()
		if len(got) != 1 || got[0] != want {
			t.Errorf("generation %d polled with %v, want [%s]", i+1, got, want)
		}
	}
	if n := reloads.Load(); n != 2 {
		t.Errorf("Reload called %d times, want 2", n)
	}

	cancel()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
}

func TestReloadFailureIsFatal(t *testing.T) {
	boom := errors.New("config unreadable")
	tests := []struct {
		name    string
		reload  ReloadFunc
		wantErr error
	}{
		{
			name:    "reload error",
			reload:  func(Generation) (Tuning, error) { return Tuning{}, boom },
			wantErr: boom,
		},
		{
			name: "invalid policy",
			reload: func(Generation) (Tuning, error) {
				return Tuning{Policy: backoff.Policy{Base: time.Second, Max: time.Millisecond, MaxAttempts: 1}}, nil
			},
			wantErr: backoff.ErrInvalidPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.sup.cfg.Reload = tt.reload

			err := waitResult(t, h.start(context.Background()))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run = %v, want %v", err, tt.wantErr)
			}
			if n := h.generations(); n != 0 {
				t.Errorf("long-poll client built %d times after reload failure", n)
			}
		})
	}
}

// ///////////////////////////////////////////////
// External control
// ///////////////////////////////////////////////

func TestRequestStopDuringGenerationStartup(t *testing.T) {
	var h *harness
	h = newHarness(t, func(gen int, p *scriptedPoller) {
		if gen == 1 {
			h.sup.RequestStop()
		}
	})

	if err := waitResult(t, h.start(context.Background())); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if n := h.generations(); n != 1 {
		t.Errorf("started %d generations, want 1", n)
	}
	if p := h.poller(0); !p.stopCalled.Load() {
		t.Error("RequestStop not forwarded to the long-poll client")
	}
	if st := h.sup.Status(); st.Running {
		t.Errorf("status after Run = %+v, want not running", st)
	}
}

func TestRequestRestartAndStop(t *testing.T) {
	h := newHarness(t, nil)
	if h.sup.RequestRestart() {
		t.Error("RequestRestart reported success with no active generation")
	}

	done := h.start(context.Background())
	h.waitRunning(1)
	if !h.sup.RequestRestart() {
		t.Fatal("RequestRestart = false during a generation")
	}
	h.waitRunning(2)

	h.sup.RequestStop()
	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if n := h.generations(); n != 2 {
		t.Errorf("started %d generations, want 2", n)
	}

	started := h.eventsOf(GenerationStarted)
	if len(started) != 2 {
		t.Fatalf("GenerationStarted events = %d, want 2", len(started))
	}
	if started[0].Generation.ID == started[1].Generation.ID {
		t.Error("generations share an ID")
	}
	for _, e := range started {
		if _, err := uuid.Parse(e.Generation.ID); err != nil {
			t.Errorf("generation ID %q is not a UUID: %v", e.Generation.ID, err)
		}
	}
}

func TestRequestStopOverridesPendingRestart(t *testing.T) {
	h := newHarness(t, nil)
	done := h.start(context.Background())
	h.waitRunning(1)

	h.sup.RequestRestart()
	h.sup.RequestStop()

	if err := waitResult(t, done); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if n := h.generations(); n > 2 {
		t.Errorf("started %d generations after stop", n)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)
	h.waitRunning(1)

	if err := h.sup.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}
	cancel()
	waitResult(t, done)
}

// ///////////////////////////////////////////////
// Construction and status
// ///////////////////////////////////////////////

func TestNewValidatesConfig(t *testing.T) {
	set, _ := watcher.NewSet([]string{"bot.py"})
	factory := func(Generation) (poller.LongPoller, error) { return nil, nil }

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no factory", Config{WatchSet: set, Policy: testPolicy}},
		{"empty watch set", Config{Policy: testPolicy, NewPoller: factory}},
		{"bad policy", Config{WatchSet: set, Policy: backoff.Policy{Base: time.Second, Max: time.Second, MaxAttempts: 1}, NewPoller: factory}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStatusWhileRunning(t *testing.T) {
	h := newHarness(t, nil)
	if st := h.sup.Status(); st.Running || st.Generation.Number != 0 {
		t.Errorf("idle Status() = %+v", st)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)
	h.waitRunning(1)
	waitFor(t, func() bool { return h.sup.Status().WorkerState == poller.Attempting.String() }, "worker to poll")

	st := h.sup.Status()
	if st.Signals != "running" {
		t.Errorf("Signals = %q, want running", st.Signals)
	}
	if st.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}

	cancel()
	waitResult(t, done)
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		et   EventType
		want string
	}{
		{GenerationStarted, "GenerationStarted"},
		{RestartTriggered, "RestartTriggered"},
		{WorkerExited, "WorkerExited"},
		{GenerationStopped, "GenerationStopped"},
		{JoinTimedOut, "JoinTimedOut"},
		{EventType(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.et, got, tt.want)
		}
	}
}
