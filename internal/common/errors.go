// Package common defines shared constants and sentinel errors used across
// pairsync components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrorStoreBackend = errors.New("store backend failure")

	// Pairing payload errors.
	ErrInvalidPayload              = errors.New("invalid pairing payload")
	ErrExpiredPayload              = errors.New("expired pairing payload")
	ErrIncompatibleProtocolVersion = errors.New("incompatible protocol version")

	// Pairing session errors.
	ErrUnknownSession = errors.New("unknown pairing session")
	ErrExpiredSession = errors.New("expired pairing session")
	ErrSecretMismatch = errors.New("pairing secret mismatch")

	// Trust errors.
	ErrUntrustedPeer = errors.New("untrusted peer")

	// Transport errors.
	ErrInvalidFrame     = errors.New("invalid frame")
	ErrConnNotReady     = errors.New("connection not ready")
	ErrPeerNotConnected = errors.New("no active connection for peer")

	// Delta-engine errors.
	ErrInvalidHistoryResult = errors.New("invalid history result")
	ErrCursorArchive        = errors.New("cursor archive failed")
	ErrCursorRestore        = errors.New("cursor restore failed")
	ErrUnknownEntity        = errors.New("unknown entity")
)
