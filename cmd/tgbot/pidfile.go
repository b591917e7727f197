package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [removePID] only deletes the file if this instance wrote it.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates or opens the PID file, locks it and writes "PID:TOKEN".
// The returned file must stay open for the daemon's lifetime to hold the lock.
func writePID(dd paths.DataDir, token string) (*os.File, error) {
	f, err := os.OpenFile(dd.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := f.WriteString(fmt.Sprintf("%d:%s", os.Getpid(), token)); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID unlocks and closes f, then removes the PID file if it still
// carries token.
func removePID(dd paths.DataDir, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dd.PID())
	if err != nil {
		return
	}
	if _, tok, ok := strings.Cut(string(data), ":"); ok && tok == token {
		os.Remove(dd.PID())
	}
}

// checkStalePID reports whether another daemon holds the PID file lock, and
// its PID when readable. A PID file nobody holds is removed.
func checkStalePID(dd paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(dd.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dd.PID())
		f.Close()
		pidStr, _, _ := strings.Cut(string(data), ":")
		if p, convErr := strconv.Atoi(pidStr); convErr == nil {
			return true, p
		}
		return true, 0
	}

	// Lock acquired: the previous instance is gone.
	_ = unlockFile(f)
	f.Close()
	os.Remove(dd.PID())
	return false, 0
}
