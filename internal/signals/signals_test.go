package signals

import (
	"sync"
	"testing"
	"time"
)

func TestNewIsRunning(t *testing.T) {
	s := New()
	if s.StopRequested() || s.RestartRequested() {
		t.Fatal("fresh signals should have both latches clear")
	}
	if got := s.State(); got != Running {
		t.Errorf("State() = %v, want %v", got, Running)
	}
	select {
	case <-s.Done():
		t.Fatal("Done() closed before any latch was set")
	default:
	}
}

func TestSetIsIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		set   func(s *Signals)
		stop  bool
		rst   bool
		state State
	}{
		{"stop once", func(s *Signals) { s.SetStop() }, true, false, StopRequested},
		{"stop thrice", func(s *Signals) { s.SetStop(); s.SetStop(); s.SetStop() }, true, false, StopRequested},
		{"restart once", func(s *Signals) { s.SetRestart() }, false, true, RestartRequested},
		{"restart thrice", func(s *Signals) { s.SetRestart(); s.SetRestart(); s.SetRestart() }, false, true, RestartRequested},
		{"both", func(s *Signals) { s.SetRestart(); s.SetStop() }, true, true, RestartRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			tt.set(s)
			if s.StopRequested() != tt.stop {
				t.Errorf("StopRequested() = %v, want %v", s.StopRequested(), tt.stop)
			}
			if s.RestartRequested() != tt.rst {
				t.Errorf("RestartRequested() = %v, want %v", s.RestartRequested(), tt.rst)
			}
			if got := s.State(); got != tt.state {
				t.Errorf("State() = %v, want %v", got, tt.state)
			}
			select {
			case <-s.Done():
			default:
				t.Error("Done() should be closed after a latch is set")
			}
		})
	}
}

func TestConcurrentSetters(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				s.SetStop()
			} else {
				s.SetRestart()
			}
			_ = s.State()
		}()
	}
	wg.Wait()

	if !s.StopRequested() || !s.RestartRequested() {
		t.Fatal("expected both latches set after concurrent writers")
	}
}

func TestDoneWakesWaiter(t *testing.T) {
	s := New()
	woke := make(chan struct{})
	go func() {
		<-s.Done()
		close(woke)
	}()

	s.SetRestart()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by SetRestart")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Running, "running"},
		{StopRequested, "stop_requested"},
		{RestartRequested, "restart_requested"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
