//go:build !windows

package control

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
)

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

func defaultAddress(dd paths.DataDir) string {
	return dd.Socket()
}

// listen creates the unix socket at addr, owner-only. A leftover socket file
// nobody answers on is removed first.
func listen(addr string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(addr), 0o700); err != nil {
		return nil, err
	}
	if _, err := os.Lstat(addr); err == nil {
		if conn, err := net.DialTimeout("unix", addr, time.Second); err == nil {
			conn.Close()
			return nil, fmt.Errorf("socket %s is in use by another process", addr)
		}
		if err := os.Remove(addr); err != nil {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	ln, err := net.Listen("unix", addr)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(addr, 0o600); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}

func dial(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", addr, timeout)
}
