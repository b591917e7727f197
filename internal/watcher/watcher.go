// Package watcher implements the file watcher that requests a restart when a
// file in the watch set is modified.
//
// The watcher observes a single directory, non-recursively. Modifications are
// reported through fsnotify by default; [ModePoll] compares modification times
// on a ticker instead, for filesystems that do not deliver inotify events.
package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/signals"
)

// Mode selects how modifications are detected.
type Mode string

const (
	// ModeNotify uses fsnotify.
	ModeNotify Mode = "fsnotify"
	// ModePoll compares modification times on a ticker.
	ModePoll Mode = "poll"
)

// defaultTick bounds how long Run takes to notice its stop predicate.
const defaultTick = time.Second

// Options configures a [Watcher].
type Options struct {
	// Mode selects the detection mechanism. Defaults to ModeNotify.
	Mode Mode
	// PollInterval is the stat interval in ModePoll. Defaults to one second.
	PollInterval time.Duration
	// Logger receives watcher records. Defaults to slog.Default().
	Logger *slog.Logger
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher sets the restart latch of one generation when a watched file in its
// directory changes. A Watcher serves a single Run call.
type Watcher struct {
	// dir is the watched directory.
	dir string
	// set holds the watched base names.
	set Set
	log *slog.Logger

	// fsw is the fsnotify source; nil in poll mode.
	fsw *fsnotify.Watcher
	// pollInterval is the stat interval in poll mode.
	pollInterval time.Duration
	// tick is the stop predicate check interval.
	tick time.Duration

	once sync.Once
}

// New opens the notification source for dir. A failure to create the fsnotify
// watcher or to register dir is returned to the caller; there is no fallback.
func New(dir string, set Set, opts Options) (*Watcher, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve watch dir %s: %w", dir, err)
	}

	w := &Watcher{
		dir:          abs,
		set:          set,
		log:          log,
		pollInterval: opts.PollInterval,
		tick:         defaultTick,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = time.Second
	}

	switch opts.Mode {
	case ModePoll:
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat watch dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("watch dir %s is not a directory", abs)
		}
		return w, nil
	case ModeNotify, "":
	default:
		return nil, fmt.Errorf("unknown watch mode %q", opts.Mode)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch dir %s: %w", abs, err)
	}
	w.fsw = fsw
	return w, nil
}

// Dir returns the absolute path of the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Polling reports whether the watcher compares modification times instead of
// using fsnotify.
func (w *Watcher) Polling() bool { return w.fsw == nil }

// Run blocks until stop returns true or the restart latch of sig is set. A nil
// stop defaults to sig.StopRequested. Each modification of a watched file sets
// the restart latch. The notification source is released before Run returns.
func (w *Watcher) Run(sig *signals.Signals, stop func() bool) {
	if stop == nil {
		stop = sig.StopRequested
	}
	defer w.Close()

	w.log.Info("file watcher started", "dir", w.dir, "files", w.set.Entries(), "polling", w.Polling())
	defer w.log.Info("file watcher stopped", "dir", w.dir)

	if w.fsw == nil {
		w.pollDir(sig, stop)
		return
	}
	w.watchDir(sig, stop)
}

// Close releases the notification source. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.fsw == nil {
			return
		}
		_ = w.fsw.Remove(w.dir)
		if closeErr := w.fsw.Close(); closeErr != nil {
			err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
		}
	})
	return err
}

// watchDir forwards fsnotify write/create events for watched files to the
// restart latch until the generation ends.
func (w *Watcher) watchDir(sig *signals.Signals, stop func() bool) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	done := sig.Done()
	for {
		select {
		case <-done:
			if sig.RestartRequested() || stop() {
				return
			}
			// Stop latch without a matching predicate: fall back to the ticker.
			done = nil
		case <-ticker.C:
			if sig.RestartRequested() || stop() {
				return
			}
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.modified(event.Name, sig)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("fsnotify event queue overflowed, some changes may be missed", "error", err)
				continue
			}
			w.log.Warn("fsnotify error ignored", "error", err)
		}
	}
}

// pollDir compares modification times of watched files on every poll tick and
// treats any advance, or a newly appearing watched file, as a modification.
func (w *Watcher) pollDir(sig *signals.Signals, stop func() bool) {
	last, err := w.snapshot()
	if err != nil {
		w.log.Warn("cannot read watch dir", "dir", w.dir, "error", err)
	}

	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	done := sig.Done()
	for {
		select {
		case <-done:
			if sig.RestartRequested() || stop() {
				return
			}
			done = nil
		case <-ticker.C:
			if sig.RestartRequested() || stop() {
				return
			}
		case <-poll.C:
			cur, err := w.snapshot()
			if err != nil {
				// Unreadable dir: keep the previous baseline.
				w.log.Warn("cannot read watch dir", "dir", w.dir, "error", err)
				continue
			}
			if last == nil {
				last = cur
				continue
			}
			for name, mod := range cur {
				if prev, ok := last[name]; !ok || mod.After(prev) {
					w.modified(filepath.Join(w.dir, name), sig)
				}
			}
			last = cur
		}
	}
}

// snapshot returns the modification time of every watched file in the
// directory, keyed by base name.
func (w *Watcher) snapshot() (map[string]time.Time, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time)
	for _, e := range entries {
		if e.IsDir() || !w.set.Contains(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[e.Name()] = info.ModTime()
	}
	return out, nil
}

// modified sets the restart latch when path is in the watch set.
func (w *Watcher) modified(path string, sig *signals.Signals) {
	if !w.set.Contains(path) {
		return
	}
	if sig.RestartRequested() {
		w.log.Debug("watched file modified, restart already pending", "file", path)
		return
	}
	w.log.Info("watched file modified, requesting restart", "file", path)
	sig.SetRestart()
}
