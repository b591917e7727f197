package supervisor

import "errors"

var (
	// ErrJoinTimeout is returned when a generation's goroutines do not return
	// within the join timeout. No further generation is started after it.
	ErrJoinTimeout = errors.New("generation did not stop within join timeout")

	// ErrAlreadyRunning is returned by Run when another Run is in progress.
	ErrAlreadyRunning = errors.New("supervisor is already running")
)
