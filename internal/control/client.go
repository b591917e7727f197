package control

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"
)

// ErrNotRunning is returned by Dial when no daemon listens on the address.
var ErrNotRunning = errors.New("tgbot daemon is not running")

// DefaultDialTimeout bounds connecting and each request round trip.
const DefaultDialTimeout = 5 * time.Second

// Address returns the control endpoint for a data directory: configured when
// set, resolved against the data directory, otherwise the platform default.
func Address(configured string, dd paths.DataDir) string {
	if configured != "" {
		return dd.Resolve(configured)
	}
	return defaultAddress(dd)
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client sends control requests to a running daemon.
type Client struct {
	timeout time.Duration

	// mu serializes round trips on conn.
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the daemon's control endpoint at addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	conn, err := dial(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRunning, addr, err)
	}
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Client{conn: conn, timeout: timeout}
}

// Do sends cmd and returns the daemon's response. A response with OK unset
// is returned together with an error carrying its message.
func (c *Client) Do(cmd Command) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := WriteMessage(c.conn, KindRequest, Request{Command: cmd}); err != nil {
		return nil, err
	}
	var resp Response
	if err := ReadMessage(c.conn, KindResponse, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return &resp, fmt.Errorf("%s: %s", cmd, resp.Error)
	}
	return &resp, nil
}

// Status returns the daemon's supervisor status and process ID.
func (c *Client) Status() (supervisor.Status, int, error) {
	resp, err := c.Do(CmdStatus)
	if err != nil {
		return supervisor.Status{}, 0, err
	}
	if resp.Status == nil {
		return supervisor.Status{}, resp.PID, errors.New("status: empty response")
	}
	return *resp.Status, resp.PID, nil
}

// Restart asks the daemon to start a new generation.
func (c *Client) Restart() error {
	_, err := c.Do(CmdRestart)
	return err
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() error {
	_, err := c.Do(CmdStop)
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
