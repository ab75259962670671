package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Listener accepts inbound peer connections and hands them out wrapped with
// framing.
type Listener struct {
	l         net.Listener
	closeOnce sync.Once
	closeErr  error
}

// Listen opens a TCP listener on addr ("host:port"; port 0 picks a free
// port, see Port).
func Listen(addr string) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("starting listener on %s: %w", addr, err)
	}
	return &Listener{l: l}, nil
}

// Port returns the actual bound port.
func (l *Listener) Port() int {
	return l.l.Addr().(*net.TCPAddr).Port
}

// Serve accepts connections until the listener is closed, invoking onConn
// for each. It blocks; run it in its own goroutine.
func (l *Listener) Serve(onConn func(*Conn)) {
	for {
		nc, err := l.l.Accept()
		if err != nil {
			return
		}
		onConn(NewConn(nc))
	}
}

// Close stops accepting. Safe to call multiple times.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { l.closeErr = l.l.Close() })
	return l.closeErr
}

// Dial connects to a discovered endpoint address and wraps the stream.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return NewConn(nc), nil
}
