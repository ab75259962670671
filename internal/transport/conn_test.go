package transport

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/protocol"
)

func pipeConns(t *testing.T) (*Conn, *Conn, net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return NewConn(a), NewConn(b), a, b
}

func collect(t *testing.T, c *Conn) (<-chan *protocol.Message, <-chan error) {
	t.Helper()
	msgs := make(chan *protocol.Message, 16)
	fails := make(chan error, 16)
	go c.ReadLoop(
		func(m *protocol.Message) { msgs <- m },
		func(err error) { fails <- err },
	)
	return msgs, fails
}

func TestConn_SendAndReceive(t *testing.T) {
	sender, receiver, _, _ := pipeConns(t)
	msgs, _ := collect(t, receiver)

	out := protocol.New(protocol.TypeSyncRequest)
	out.PeerID = "peer-1"
	out.SinceCursor = []byte{0xCA, 0xFE}

	go func() { _ = sender.Send(out) }()

	select {
	case in := <-msgs:
		assert.Equal(t, out.ID, in.ID)
		assert.Equal(t, protocol.TypeSyncRequest, in.Type)
		assert.Equal(t, out.SinceCursor, in.SinceCursor)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestConn_ReadLoopRearmsAfterBadBody(t *testing.T) {
	_, receiver, raw, _ := pipeConns(t)
	msgs, _ := collect(t, receiver)

	// A correctly framed body that is not valid JSON: only that message is
	// lost, the loop keeps reading.
	garbage := []byte("this is not json")
	frame := make([]byte, 4+len(garbage))
	binary.BigEndian.PutUint32(frame, uint32(len(garbage)))
	copy(frame[4:], garbage)

	go func() {
		if _, err := raw.Write(frame); err != nil {
			return
		}
		_ = NewConn(raw).Send(protocol.New(protocol.TypeAck))
	}()

	select {
	case in := <-msgs:
		assert.Equal(t, protocol.TypeAck, in.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not re-arm after invalid frame")
	}
}

func TestConn_OversizeHeaderFailsLoop(t *testing.T) {
	_, receiver, raw, _ := pipeConns(t)
	_, fails := collect(t, receiver)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	go func() { _, _ = raw.Write(header[:]) }()

	select {
	case err := <-fails:
		require.ErrorIs(t, err, common.ErrInvalidFrame)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure for oversize frame")
	}
}

func TestConn_StreamFailurePropagatesOnce(t *testing.T) {
	sender, receiver, _, _ := pipeConns(t)
	_, fails := collect(t, receiver)

	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close()) // idempotent

	select {
	case <-fails:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure after peer close")
	}

	// The loop stopped: no second failure arrives.
	select {
	case err := <-fails:
		t.Fatalf("unexpected second failure: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListener_AcceptAndDial(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NotZero(t, l.Port())

	accepted := make(chan *Conn, 1)
	go l.Serve(func(c *Conn) { accepted <- c })

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(l.Port()))
	client, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server := <-accepted:
		msgs, _ := collect(t, server)
		require.NoError(t, client.Send(protocol.New(protocol.TypePairHello)))
		select {
		case m := <-msgs:
			assert.Equal(t, protocol.TypePairHello, m.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message over tcp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	require.NoError(t, l.Close())
	require.NoError(t, l.Close()) // idempotent
}
