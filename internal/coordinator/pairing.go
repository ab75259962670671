package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/pairing"
	"github.com/ledgerlink/pairsync/internal/protocol"
	"github.com/ledgerlink/pairsync/internal/store/trust"
	"github.com/ledgerlink/pairsync/internal/transport"
)

// CreatePairingPayload opens a pairing session and returns the payload to
// render as a QR code. Expired sessions are swept as a side effect.
func (c *Coordinator) CreatePairingPayload() (*pairing.Payload, error) {
	c.sessions.Sweep(now())

	_, p, err := c.sessions.Create(c.cfg.PairingLifetime, c.cfg.ServiceType, c.cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PairWithPeer runs the scanner side of the handshake: browse for the
// provider named in the payload, dial it and send pairHello. The handshake
// completes asynchronously; a PeerConnected event fires on success.
func (c *Coordinator) PairWithPeer(ctx context.Context, p *pairing.Payload) error {
	// The browser is bound to the configured service type, so a payload
	// naming a different service could never find its provider.
	if p.ServiceType != c.cfg.ServiceType {
		return fmt.Errorf("%w: payload service type %q, local service type %q",
			common.ErrInvalidPayload, p.ServiceType, c.cfg.ServiceType)
	}

	local, err := c.identity.Local()
	if err != nil {
		return err
	}

	// The payload is only honored while it is valid.
	bctx, cancel := context.WithDeadline(ctx, p.ExpiresAt)
	defer cancel()

	found := make(chan transport.Endpoint, 1)
	err = c.discovery.Browse(bctx, func(ep transport.Endpoint) {
		if ep.PeerID == local.PeerID {
			return
		}
		if p.ExpectedPeerName != "" && ep.Instance != p.ExpectedPeerName {
			return
		}
		select {
		case found <- ep:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("browsing for pairing provider: %w", err)
	}

	var ep transport.Endpoint
	select {
	case ep = <-found:
	case <-bctx.Done():
		return fmt.Errorf("no pairing provider found before the payload expired: %w", common.ErrPeerNotConnected)
	}

	conn, err := c.dial(ctx, ep.Addr)
	if err != nil {
		return err
	}
	l := &link{conn: conn, sessionID: p.SessionID}
	if !c.attachLink(l) {
		return fmt.Errorf("coordinator stopped: %w", common.ErrConnNotReady)
	}

	hello := protocol.New(protocol.TypePairHello)
	hello.PairingSessionID = p.SessionID
	hello.PairingSecret = p.Secret
	hello.PeerID = local.PeerID
	hello.DeviceName = c.cfg.DeviceName
	hello.Fingerprint = local.Fingerprint
	if err := conn.Send(hello); err != nil {
		c.dropLink(l)
		return err
	}

	c.log.Info(ctx, "pairing hello sent", "provider", ep.Instance, "addr", ep.Addr)
	return nil
}

// handlePairHello runs on the provider. The scanner presents the session id
// and secret from the QR payload together with its own identity.
func (c *Coordinator) handlePairHello(ctx context.Context, l *link, m *protocol.Message) {
	if err := c.sessions.Validate(m.PairingSessionID, m.PairingSecret); err != nil {
		code := protocol.CodeInvalidPairingSession
		if errors.Is(err, common.ErrSecretMismatch) {
			code = protocol.CodeInvalidPairingSecret
		}
		c.log.Warn(ctx, "rejecting pairing hello", "session", m.PairingSessionID, "error", err)
		_ = l.conn.Send(protocol.NewError(code, err.Error()))
		c.dropLink(l)
		return
	}

	l.sessionID = m.PairingSessionID
	l.helloPeerID = m.PeerID
	l.helloDeviceName = m.DeviceName
	l.helloFingerprint = m.Fingerprint

	local, err := c.identity.Local()
	if err != nil {
		c.log.Error(ctx, "loading identity for pairing confirm", "error", err)
		_ = l.conn.Send(protocol.NewError(protocol.CodeInternal, "identity unavailable"))
		c.dropLink(l)
		return
	}

	confirm := protocol.New(protocol.TypePairConfirm)
	confirm.PairingSessionID = m.PairingSessionID
	confirm.PeerID = local.PeerID
	confirm.DeviceName = c.cfg.DeviceName
	confirm.Fingerprint = local.Fingerprint
	if err := l.conn.Send(confirm); err != nil {
		c.log.Error(ctx, "sending pairing confirm", "error", err)
		c.dropLink(l)
		return
	}
	c.log.Info(ctx, "pairing confirm sent", "session", m.PairingSessionID, "scanner", m.DeviceName)
}

// handlePairConfirm runs on the scanner. The provider has accepted the
// session and presented its identity; the scanner pins it and replies done.
func (c *Coordinator) handlePairConfirm(ctx context.Context, l *link, m *protocol.Message) {
	if l.sessionID == "" || l.sessionID != m.PairingSessionID {
		c.log.Warn(ctx, "ignoring pairing confirm for unexpected session", "session", m.PairingSessionID)
		return
	}

	if err := c.persistTrust(m.PeerID, m.DeviceName, m.Fingerprint); err != nil {
		c.log.Error(ctx, "persisting trust record", "peer", m.PeerID, "error", err)
		c.dropLink(l)
		return
	}
	c.registerPeer(l, m.PeerID, m.DeviceName)
	l.sessionID = ""

	local, err := c.identity.Local()
	if err != nil {
		c.log.Error(ctx, "loading identity for pairing done", "error", err)
		return
	}
	done := protocol.New(protocol.TypePairDone)
	done.PairingSessionID = m.PairingSessionID
	done.PeerID = local.PeerID
	done.DeviceName = c.cfg.DeviceName
	done.Fingerprint = local.Fingerprint
	if err := l.conn.Send(done); err != nil {
		c.log.Error(ctx, "sending pairing done", "error", err)
		c.dropLink(l)
		return
	}

	c.log.Info(ctx, "paired with provider", "peer", m.PeerID, "device", m.DeviceName)
	c.events.emit(PeerConnected{PeerID: m.PeerID, DeviceName: m.DeviceName})
}

// handlePairDone runs on the provider and closes out the handshake: the
// scanner's identity is pinned and the one-time session consumed.
func (c *Coordinator) handlePairDone(ctx context.Context, l *link, m *protocol.Message) {
	if l.sessionID == "" || l.sessionID != m.PairingSessionID {
		c.log.Warn(ctx, "ignoring pairing done for unexpected session", "session", m.PairingSessionID)
		return
	}

	peerID, deviceName, fingerprint := m.PeerID, m.DeviceName, m.Fingerprint
	if peerID == "" {
		peerID, deviceName, fingerprint = l.helloPeerID, l.helloDeviceName, l.helloFingerprint
	}

	if err := c.persistTrust(peerID, deviceName, fingerprint); err != nil {
		c.log.Error(ctx, "persisting trust record", "peer", peerID, "error", err)
		c.dropLink(l)
		return
	}
	c.sessions.Consume(l.sessionID)
	c.registerPeer(l, peerID, deviceName)
	l.sessionID = ""

	c.log.Info(ctx, "paired with scanner", "peer", peerID, "device", deviceName)
	c.events.emit(PeerConnected{PeerID: peerID, DeviceName: deviceName})
}

// persistTrust records a freshly paired peer and deduplicates stale records
// left behind by earlier pairings of the same device.
func (c *Coordinator) persistTrust(peerID, deviceName, fingerprint string) error {
	rec := trust.Record{
		PeerID:      peerID,
		DeviceName:  deviceName,
		Fingerprint: fingerprint,
		PairedAt:    now(),
	}
	if err := c.trust.Save(rec); err != nil {
		return err
	}
	return c.trust.Maintain()
}
