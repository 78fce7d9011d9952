// Package serial implements the request/response transport contract over a
// serial line, using go.bug.st/serial for the device I/O.
package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/transport"
)

const (
	// DefaultBaudRate is used when the "baud_rate" parameter is absent.
	DefaultBaudRate = 9600

	// DefaultReadTimeout bounds a single Read when the "timeout" parameter
	// is absent.
	DefaultReadTimeout = time.Second

	readBufferSize = 4096
)

// Line is a serial-port transport. Send and Read run on disjoint
// goroutines; go.bug.st/serial ports tolerate that for a single reader and
// a single writer.
type Line struct {
	name    string
	baud    int
	timeout time.Duration

	mu   sync.Mutex
	port serial.Port
}

// New builds a [Line] from network parameters. Required: "port_name".
// Optional: "baud_rate" (default 9600) and "timeout" (seconds).
func New(params netparams.Params) (transport.ReqRes, error) {
	if missing := params.RequireKeys("port_name"); len(missing) > 0 {
		return nil, link.NewError(link.KindConfiguration, fmt.Errorf("missing required parameters: %v", missing))
	}

	baud := params.IntDefault("baud_rate", DefaultBaudRate)
	if baud <= 0 {
		return nil, link.NewError(link.KindConfiguration, fmt.Errorf("invalid baud rate %d", baud))
	}

	timeout := DefaultReadTimeout
	switch v := params.Get("timeout").(type) {
	case int:
		if v > 0 {
			timeout = time.Duration(v) * time.Second
		}
	case float64:
		if v > 0 {
			timeout = time.Duration(v * float64(time.Second))
		}
	}

	return &Line{name: params.String("port_name"), baud: baud, timeout: timeout}, nil
}

// Connect opens the device. Idempotent while the port is open. The context
// is accepted for contract symmetry; opening a local device doesn't block
// long enough to warrant cancellation plumbing.
func (l *Line) Connect(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		return nil
	}

	port, err := serial.Open(l.name, &serial.Mode{BaudRate: l.baud})
	if err != nil {
		return link.NewError(link.KindConnection, err)
	}

	if err := port.SetReadTimeout(l.timeout); err != nil {
		_ = port.Close()
		return link.NewError(link.KindConnection, err)
	}

	l.port = port
	return nil
}

// Disconnect closes the device. Safe to call when not connected.
func (l *Line) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
}

// Send writes frame to the line in full.
func (l *Line) Send(frame []byte) (bool, error) {
	port := l.current()
	if port == nil {
		return false, link.NewError(link.KindConnection, errors.New("port not open"))
	}

	if _, err := port.Write(frame); err != nil {
		return false, link.NewError(link.KindConnection, err)
	}
	return true, nil
}

// Read waits up to the configured timeout for the next chunk of bytes. A
// zero-byte read with no error is the port's timeout signal, reported as
// (true, nil).
func (l *Line) Read() (bool, []byte) {
	port := l.current()
	if port == nil {
		return false, nil
	}

	buf := make([]byte, readBufferSize)
	n, err := port.Read(buf)
	if err != nil {
		return false, nil
	}
	if n == 0 {
		return true, nil
	}

	return true, buf[:n]
}

func (l *Line) current() serial.Port {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}
