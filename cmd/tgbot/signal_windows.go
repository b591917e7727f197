//go:build windows

package main

import (
	"os"
	"os/signal"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// signalChannel returns a buffered channel that receives os.Interrupt. The Go
// runtime maps CTRL_BREAK_EVENT and console close to it as well. Restarts on
// Windows go through the control pipe.
func signalChannel() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch
}

// isReload reports whether sig asks for a restart. Windows has no reload signal.
func isReload(os.Signal) bool {
	return false
}
