// Package transport provides local-network connectivity for the sync engine:
// mDNS service discovery and a length-framed message stream over TCP.
//
// Wire frame: a 4-byte big-endian length header followed by exactly that
// many bytes of JSON (the protocol.Message envelope).
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/protocol"
)

const (
	headerSize = 4

	// MaxFrameSize bounds a single message. A header past this value means
	// the stream is corrupt; there is no way to resynchronize.
	MaxFrameSize = 8 << 20
)

// Conn wraps a byte stream with message framing. Writes are serialized;
// reads happen in a single ReadLoop goroutine.
type Conn struct {
	nc net.Conn

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Send frames and writes one message. It returns once the bytes are handed
// to the stream, or a transport error.
func (c *Conn) Send(m *protocol.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: message of %d bytes exceeds frame limit", common.ErrInvalidFrame, len(data))
	}

	frame := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(data)))
	copy(frame[headerSize:], data)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.nc.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadLoop reads header-then-body until the stream fails. Recoverable
// framing errors (a well-delimited body that does not decode) re-arm the
// loop; stream failures invoke onFailure exactly once and stop it.
//
// ReadLoop blocks; run it in its own goroutine.
func (c *Conn) ReadLoop(onMessage func(*protocol.Message), onFailure func(error)) {
	for {
		var header [headerSize]byte
		if _, err := io.ReadFull(c.nc, header[:]); err != nil {
			onFailure(fmt.Errorf("reading frame header: %w", err))
			return
		}

		size := binary.BigEndian.Uint32(header[:])
		if size == 0 || size > MaxFrameSize {
			onFailure(fmt.Errorf("%w: frame length %d", common.ErrInvalidFrame, size))
			return
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(c.nc, body); err != nil {
			onFailure(fmt.Errorf("reading frame body: %w", err))
			return
		}

		var m protocol.Message
		if err := json.Unmarshal(body, &m); err != nil {
			// Framing stayed intact, only this message is lost.
			continue
		}
		onMessage(&m)
	}
}

// Close tears down the underlying stream. Safe to call multiple times.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.nc.Close() })
	return c.closeErr
}

// RemoteAddr describes the peer end of the stream.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}
