// Package control implements the daemon's local control channel: a unix
// domain socket (a named pipe on Windows) carrying length-prefixed JSON
// frames. The daemon runs a [Server]; tgbotctl talks to it with a [Client].
package control

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"
)

// idleTimeout closes control connections that send nothing for this long.
const idleTimeout = 30 * time.Second

// Controller is the part of the supervisor the control channel drives.
type Controller interface {
	Status() supervisor.Status
	RequestRestart() bool
	RequestStop()
}

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Server answers control requests on a listener.
type Server struct {
	ctl Controller
	log *slog.Logger
	ln  net.Listener

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Listen opens the control endpoint at addr and returns a Server for it.
// On unix a stale socket file left by a crashed daemon is replaced; a socket
// with a live listener is an error.
func Listen(addr string, ctl Controller, log *slog.Logger) (*Server, error) {
	ln, err := listen(addr)
	if err != nil {
		return nil, fmt.Errorf("control: listen on %s: %w", addr, err)
	}
	return NewServer(ln, ctl, log), nil
}

// NewServer creates a Server on an existing listener.
func NewServer(ln net.Listener, ctl Controller, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		ctl:   ctl,
		log:   log,
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until Close. It returns nil after Close and the
// accept error otherwise.
func (s *Server) Serve() error {
	s.log.Info("control server listening", "addr", s.ln.Addr().String())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.ServeConn(conn)
		}()
	}
}

// Close stops accepting, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// ServeConn answers requests on conn until the peer hangs up, goes idle or
// sends a malformed frame. It closes conn.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()
	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		var req Request
		if err := ReadMessage(conn, KindRequest, &req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("control connection closed", "error", err)
			}
			return
		}

		resp := s.handle(req)
		conn.SetWriteDeadline(time.Now().Add(idleTimeout))
		if err := WriteMessage(conn, KindResponse, resp); err != nil {
			s.log.Debug("control response not delivered", "command", req.Command, "error", err)
			return
		}
	}
}

// handle executes one request.
func (s *Server) handle(req Request) Response {
	s.log.Info("control request", "command", req.Command)
	resp := Response{OK: true, PID: os.Getpid()}

	switch req.Command {
	case CmdStatus:
		st := s.ctl.Status()
		resp.Status = &st
	case CmdRestart:
		if !s.ctl.RequestRestart() {
			resp.OK = false
			resp.Error = "no active generation"
		}
	case CmdStop:
		s.ctl.RequestStop()
	default:
		resp.OK = false
		resp.Error = fmt.Sprintf("unknown command %q", req.Command)
	}
	return resp
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers conn and its handler, reporting false once the server is
// closed.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
