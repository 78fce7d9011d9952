// Package tcp implements the request/response transport contract over TCP
// sockets, in two roles: a client that dials a remote endpoint, and a
// server that listens and mirrors a single accepted peer over the same
// contract.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

const (
	// DefaultTimeout bounds a single Read or Send when the "timeout"
	// parameter is absent.
	DefaultTimeout = time.Second

	// readBufferSize is the size of a single Read's scratch buffer. Torn
	// frames across reads are the codec's problem, not the transport's.
	readBufferSize = 4096
)

// Client is a dialing TCP transport. Send and Read run on disjoint
// goroutines; the connection handle is mutex-guarded so Connect and
// Disconnect can swap it safely underneath them.
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient builds a [Client] from network parameters. Required: "host"
// and "port". Optional: "timeout" (seconds, int or float).
func NewClient(params netparams.Params) (transport.ReqRes, error) {
	addr, timeout, err := endpoint(params)
	if err != nil {
		return nil, err
	}
	return &Client{addr: addr, timeout: timeout}, nil
}

// Connect dials the remote endpoint. It is idempotent: an already-connected
// client returns nil without redialing.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return link.NewError(link.KindConnection, err)
	}

	c.conn = conn
	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Send writes frame in full, bounded by the configured timeout. A write
// error means the link is no longer usable.
func (c *Client) Send(frame []byte) (bool, error) {
	conn := c.current()
	if conn == nil {
		return false, link.NewError(link.KindConnection, errors.New("not connected"))
	}
	return send(conn, frame, c.timeout)
}

// Read waits up to the configured timeout for the next chunk of bytes.
// (true, nil) means no data arrived in time; (false, _) means the link is
// lost.
func (c *Client) Read() (bool, []byte) {
	conn := c.current()
	if conn == nil {
		return false, nil
	}
	return read(conn, c.timeout)
}

func (c *Client) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// endpoint extracts and validates the shared "host"/"port"/"timeout"
// parameters.
func endpoint(params netparams.Params) (string, time.Duration, error) {
	if missing := params.RequireKeys("host", "port"); len(missing) > 0 {
		return "", 0, link.NewError(link.KindConfiguration, fmt.Errorf("missing required parameters: %v", missing))
	}

	port := params.Int("port")
	if port <= 0 || port > 65535 {
		return "", 0, link.NewError(link.KindConfiguration, fmt.Errorf("invalid port %d", port))
	}

	return net.JoinHostPort(params.String("host"), strconv.Itoa(port)), timeoutParam(params), nil
}

// timeoutParam reads the "timeout" parameter as seconds, accepting both
// integer and fractional values.
func timeoutParam(params netparams.Params) time.Duration {
	switch v := params.Get("timeout").(type) {
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	}
	return DefaultTimeout
}

func send(conn net.Conn, frame []byte, timeout time.Duration) (bool, error) {
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(frame); err != nil {
		return false, link.NewError(link.KindConnection, err)
	}
	return true, nil
}

func read(conn net.Conn, timeout time.Duration) (bool, []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if n > 0 {
				return true, buf[:n]
			}
			return true, nil
		}
		return false, nil
	}

	return true, buf[:n]
}
