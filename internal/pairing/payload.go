// Package pairing implements the QR bootstrap: the base64 payload a provider
// renders as a QR code, and the ephemeral sessions binding a one-time secret
// to that payload.
package pairing

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerlink/pairsync/internal/common"
)

// Payload is the QR/wire artifact a scanner decodes to find and greet the
// provider. It is never persisted and is valid only until ExpiresAt.
type Payload struct {
	SessionID        string    `json:"pairingSessionId"`
	ServiceType      string    `json:"bonjourServiceType"`
	ExpectedPeerName string    `json:"expectedPeerDeviceId,omitempty"`
	Secret           string    `json:"pairingSecret"`
	ProtocolVersion  int       `json:"protocolVersion"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// Encode serializes the payload to a base64 blob suitable for QR rendering.
func (p *Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding pairing payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses and validates a scanned payload: structure, protocol version
// equality, and expiry.
func Decode(encoded string) (*Payload, error) {
	return decodeAt(encoded, time.Now())
}

func decodeAt(encoded string, now time.Time) (*Payload, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	if p.SessionID == "" || p.Secret == "" || p.ServiceType == "" {
		return nil, fmt.Errorf("%w: missing required fields", common.ErrInvalidPayload)
	}
	if p.ProtocolVersion != common.ProtocolVersion {
		return nil, fmt.Errorf("%w: payload version %d, local version %d",
			common.ErrIncompatibleProtocolVersion, p.ProtocolVersion, common.ProtocolVersion)
	}
	if !now.Before(p.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired at %s", common.ErrExpiredPayload, p.ExpiresAt.Format(time.RFC3339))
	}
	return &p, nil
}
