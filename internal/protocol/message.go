// Package protocol defines the wire envelope exchanged between paired
// devices. Every message carries the protocol version; receivers gate on it
// before dispatching by type.
package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/delta"
)

// Type discriminates protocol messages.
type Type string

const (
	TypePairHello    Type = "pairHello"
	TypePairConfirm  Type = "pairConfirm"
	TypePairDone     Type = "pairDone"
	TypeSyncRequest  Type = "syncRequest"
	TypeSyncResponse Type = "syncResponse"
	TypeAck          Type = "ack"
	TypeError        Type = "error"
)

// Error codes carried by TypeError messages.
const (
	CodeInvalidPairingSession       = "invalidPairingSession"
	CodeInvalidPairingSecret        = "invalidPairingSecret"
	CodeUntrustedPeer               = "untrustedPeer"
	CodeIncompatibleProtocolVersion = "incompatibleProtocolVersion"
	CodeInternal                    = "internal"
)

// Message is the wire envelope. All date fields are RFC 3339 in JSON;
// cursors travel base64-encoded (encoding/json []byte default).
type Message struct {
	ID              string    `json:"id"`
	ProtocolVersion int       `json:"protocolVersion"`
	SentAt          time.Time `json:"sentAt"`
	Type            Type      `json:"type"`

	// Pairing fields.
	PairingSessionID string `json:"pairingSessionId,omitempty"`
	PairingSecret    string `json:"pairingSecret,omitempty"`

	// Identity fields (pairHello, pairConfirm, pairDone, syncRequest).
	PeerID      string `json:"peerId,omitempty"`
	DeviceName  string `json:"deviceName,omitempty"`
	Fingerprint string `json:"publicKeyFingerprint,omitempty"`

	// Sync fields.
	SinceCursor []byte       `json:"sinceCursor,omitempty"`
	Delta       *delta.Delta `json:"delta,omitempty"`
	AckCursor   []byte       `json:"ackCursor,omitempty"`

	// Error fields.
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// New returns an envelope of the given type stamped with a fresh id, the
// local protocol version, and the current time.
func New(t Type) *Message {
	return &Message{
		ID:              uuid.NewString(),
		ProtocolVersion: common.ProtocolVersion,
		SentAt:          time.Now().UTC(),
		Type:            t,
	}
}

// NewError builds an error reply with the given code and message.
func NewError(code, msg string) *Message {
	m := New(TypeError)
	m.ErrorCode = code
	m.ErrorMessage = msg
	return m
}
