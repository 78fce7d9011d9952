package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

// acceptPollInterval bounds each Accept attempt so a blocked Connect can
// notice context cancellation.
const acceptPollInterval = 250 * time.Millisecond

// Server is a listening TCP transport: it accepts a single client and
// mirrors it over the request/response contract. A second client is not
// accepted until the first disconnects and the supervisor reconnects.
type Server struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
}

// NewServer builds a [Server] from network parameters. Required: "host"
// and "port". Optional: "timeout" (seconds).
func NewServer(params netparams.Params) (transport.ReqRes, error) {
	addr, timeout, err := endpoint(params)
	if err != nil {
		return nil, err
	}
	return &Server{addr: addr, timeout: timeout}, nil
}

// Connect binds the listening socket if needed, then blocks until a client
// connects or ctx is done. Idempotent while a client is connected.
func (s *Server) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}

	if s.ln == nil {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			s.mu.Unlock()
			return link.NewError(link.KindConnection, err)
		}
		s.ln = ln
	}
	ln := s.ln
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return link.NewError(link.KindConnection, err)
		}

		if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptPollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return link.NewError(link.KindConnection, err)
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		return nil
	}
}

// Disconnect closes the accepted client and the listening socket. The next
// Connect rebinds from scratch.
func (s *Server) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
}

// Send writes frame to the accepted client in full.
func (s *Server) Send(frame []byte) (bool, error) {
	conn := s.current()
	if conn == nil {
		return false, link.NewError(link.KindConnection, errors.New("no client connected"))
	}
	return send(conn, frame, s.timeout)
}

// Read waits up to the configured timeout for the next chunk from the
// accepted client.
func (s *Server) Read() (bool, []byte) {
	conn := s.current()
	if conn == nil {
		return false, nil
	}
	return read(conn, s.timeout)
}

func (s *Server) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
