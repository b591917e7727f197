// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile    = "tgbot.pid"
	ConfigFile = "config.toml"
	LogFile    = "tgbot.log"
	SocketFile = "tgbot.sock"
)

// Names shared by the daemon and the control client.
const (
	BinaryName = "tgbot"
	DataDirRel = ".tgbot" // relative to $HOME
	PipeName   = `\\.\pipe\tgbot`
)

// KeyFileRel is the default bot token key file, relative to the data directory.
var KeyFileRel = filepath.Join("settings", "key.json")

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns the DataDir under the user's home directory, falling back
// to ./.tgbot when the home directory cannot be determined.
func Default() DataDir {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{Root: filepath.Join(".", DataDirRel)}
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Socket returns the full path to the unix control socket.
func (d DataDir) Socket() string { return filepath.Join(d.Root, SocketFile) }

// KeyFile returns the default path of the bot token key file.
func (d DataDir) KeyFile() string { return filepath.Join(d.Root, KeyFileRel) }

// Resolve returns p unchanged when absolute, otherwise joined to the root.
// An empty p stays empty.
func (d DataDir) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.Root, p)
}
