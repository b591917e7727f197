package control

import "github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"

// Command names an operation the daemon performs on request.
type Command string

const (
	// CmdStatus returns a snapshot of the supervisor.
	CmdStatus Command = "status"
	// CmdRestart ends the active generation and starts the next one.
	CmdRestart Command = "restart"
	// CmdStop ends the active generation and the daemon with it.
	CmdStop Command = "stop"
)

// Request is the payload of a KindRequest frame.
type Request struct {
	Command Command `json:"command"`
}

// Response is the payload of a KindResponse frame.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// PID is the daemon's process ID.
	PID int `json:"pid,omitempty"`
	// Status is set for CmdStatus.
	Status *supervisor.Status `json:"status,omitempty"`
}
