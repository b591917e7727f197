//go:build windows

package control

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
)

// ///////////////////////////////////////////////
// Connection
// ///////////////////////////////////////////////

// defaultAddress returns the fixed pipe name. Windows named pipes live in a
// machine-wide namespace, not in the data directory.
func defaultAddress(paths.DataDir) string {
	return paths.PipeName
}

// listen creates the named pipe at addr with the default security
// descriptor of the process token.
func listen(addr string) (net.Listener, error) {
	return winio.ListenPipe(addr, nil)
}

func dial(addr string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(addr, &timeout)
}
