package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/delta"
	"github.com/ledgerlink/pairsync/internal/protocol"
	"github.com/ledgerlink/pairsync/internal/store/checkpoint"
	"github.com/ledgerlink/pairsync/internal/transport"
)

// SyncNow asks a connected peer for its changes since our last checkpoint.
// The exchange itself is asynchronous; SyncActivity events report progress.
//
// peerID may name a peer loosely: an exact peer id wins, then a live
// connection's device name, and with exactly one live connection an empty
// peerID resolves to it.
func (c *Coordinator) SyncNow(ctx context.Context, peerID string) error {
	local, err := c.identity.Local()
	if err != nil {
		return err
	}

	target, err := c.resolveConn(peerID)
	if err != nil {
		return err
	}

	cursor, err := c.loadCheckpoint(ctx, target.peerID, checkpoint.DirectionOutgoing)
	if err != nil {
		return err
	}

	req := protocol.New(protocol.TypeSyncRequest)
	req.SinceCursor = cursor
	req.PeerID = local.PeerID
	req.DeviceName = c.cfg.DeviceName
	if err := target.conn.Send(req); err != nil {
		return err
	}
	c.log.Info(ctx, "sync requested", "peer", target.peerID, "haveCheckpoint", len(cursor) > 0)
	return nil
}

// connTarget is a stable snapshot of one registered connection.
type connTarget struct {
	conn       *transport.Conn
	peerID     string
	deviceName string
}

// resolveConn maps a loose peer reference to a live connection.
func (c *Coordinator) resolveConn(peerID string) (connTarget, error) {
	c.mu.Lock()
	active := make([]connTarget, 0, len(c.byPeer))
	for id, l := range c.byPeer {
		active = append(active, connTarget{conn: l.conn, peerID: id, deviceName: l.deviceName})
	}
	c.mu.Unlock()

	for _, t := range active {
		if t.peerID == peerID {
			return t, nil
		}
	}
	for _, t := range active {
		if peerID != "" && t.deviceName == peerID {
			return t, nil
		}
	}
	if len(active) == 1 {
		return active[0], nil
	}
	return connTarget{}, fmt.Errorf("peer %q: %w", peerID, common.ErrPeerNotConnected)
}

// ApproveIncomingSync arms a one-shot approval for the peer's next incoming
// sync request. The peer is expected to request again; the request that
// triggered the approval prompt got no response.
func (c *Coordinator) ApproveIncomingSync(peerID string) {
	c.mu.Lock()
	c.approvals[peerID] = struct{}{}
	c.mu.Unlock()
}

// consumeApproval takes the one-shot approval if present.
func (c *Coordinator) consumeApproval(peerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.approvals[peerID]; !ok {
		return false
	}
	delete(c.approvals, peerID)
	return true
}

// handleSyncRequest serves the responder side: resolve the sender against the
// trust store, optionally wait for approval, then ship a delta.
func (c *Coordinator) handleSyncRequest(ctx context.Context, l *link, m *protocol.Message) {
	peerID, err := c.resolveTrusted(l, m)
	if err != nil {
		c.log.Warn(ctx, "rejecting sync request from untrusted peer", "peer", m.PeerID, "device", m.DeviceName)
		_ = l.conn.Send(protocol.NewError(protocol.CodeUntrustedPeer, "peer is not paired with this device"))
		c.dropLink(l)
		return
	}

	if c.cfg.RequireSyncApproval && !c.consumeApproval(peerID) {
		c.log.Info(ctx, "sync request held for approval", "peer", peerID, "device", m.DeviceName)
		c.events.emit(SyncApprovalRequested{PeerID: peerID, DeviceName: m.DeviceName})
		return
	}

	c.events.emit(SyncActivity{PeerID: peerID, Direction: checkpoint.DirectionIncoming, Active: true})
	defer c.events.emit(SyncActivity{PeerID: peerID, Direction: checkpoint.DirectionIncoming, Active: false})

	d, err := c.engine.CreateDelta(ctx, m.SinceCursor)
	if err != nil {
		c.log.Error(ctx, "building delta", "peer", peerID, "error", err)
		_ = l.conn.Send(protocol.NewError(protocol.CodeInternal, "failed to build delta"))
		return
	}

	local, err := c.identity.Local()
	if err != nil {
		c.log.Error(ctx, "loading identity for sync response", "error", err)
		return
	}
	resp := protocol.New(protocol.TypeSyncResponse)
	resp.Delta = d
	resp.PeerID = local.PeerID
	resp.DeviceName = c.cfg.DeviceName
	if err := l.conn.Send(resp); err != nil {
		c.log.Error(ctx, "sending sync response", "peer", peerID, "error", err)
		return
	}

	if err := c.stats.Add(ctx, peerID, deltaSize(d), now()); err != nil {
		c.log.Warn(ctx, "recording sync stats", "peer", peerID, "error", err)
	}
	c.log.Info(ctx, "sync response sent", "peer", peerID,
		"upserts", len(d.Upserts), "deletes", len(d.Deletes))
}

// handleSyncResponse applies the delta on the requester and acknowledges it.
func (c *Coordinator) handleSyncResponse(ctx context.Context, l *link, m *protocol.Message) {
	peerID, err := c.resolveTrusted(l, m)
	if err != nil {
		c.log.Warn(ctx, "dropping sync response from untrusted peer", "peer", m.PeerID)
		c.dropLink(l)
		return
	}
	if m.Delta == nil {
		c.log.Warn(ctx, "dropping sync response without delta", "peer", peerID)
		return
	}

	c.events.emit(SyncActivity{PeerID: peerID, Direction: checkpoint.DirectionOutgoing, Active: true})
	defer c.events.emit(SyncActivity{PeerID: peerID, Direction: checkpoint.DirectionOutgoing, Active: false})

	if err := c.engine.Apply(ctx, m.Delta); err != nil {
		c.log.Error(ctx, "applying delta", "peer", peerID, "error", err)
		return
	}

	// An empty exchange carries no cursor; persisting it would rewind the
	// checkpoint to the beginning of history.
	if len(m.Delta.NewCursor) > 0 {
		if err := c.saveCheckpoint(ctx, peerID, checkpoint.DirectionOutgoing, m.Delta.NewCursor); err != nil {
			c.log.Error(ctx, "saving checkpoint", "peer", peerID, "error", err)
			return
		}
	}
	if err := c.stats.Add(ctx, peerID, deltaSize(m.Delta), now()); err != nil {
		c.log.Warn(ctx, "recording sync stats", "peer", peerID, "error", err)
	}
	if err := c.trust.TouchSync(peerID, now()); err != nil {
		c.log.Warn(ctx, "recording sync time", "peer", peerID, "error", err)
	}

	local, err := c.identity.Local()
	if err != nil {
		c.log.Error(ctx, "loading identity for ack", "error", err)
		return
	}
	ack := protocol.New(protocol.TypeAck)
	ack.AckCursor = m.Delta.NewCursor
	ack.PeerID = local.PeerID
	ack.DeviceName = c.cfg.DeviceName
	if err := l.conn.Send(ack); err != nil {
		c.log.Error(ctx, "sending ack", "peer", peerID, "error", err)
		return
	}
	c.log.Info(ctx, "delta applied", "peer", peerID,
		"upserts", len(m.Delta.Upserts), "deletes", len(m.Delta.Deletes))
}

// handleAck closes out a served sync on the responder: the requester has
// durably applied everything up to the acknowledged cursor.
func (c *Coordinator) handleAck(ctx context.Context, l *link, m *protocol.Message) {
	peerID, err := c.resolveTrusted(l, m)
	if err != nil {
		c.log.Warn(ctx, "dropping ack from untrusted peer", "peer", m.PeerID)
		c.dropLink(l)
		return
	}

	if len(m.AckCursor) > 0 {
		if err := c.saveCheckpoint(ctx, peerID, checkpoint.DirectionIncoming, m.AckCursor); err != nil {
			c.log.Error(ctx, "saving acknowledged checkpoint", "peer", peerID, "error", err)
			return
		}
	}
	if err := c.trust.TouchSync(peerID, now()); err != nil {
		c.log.Warn(ctx, "recording sync time", "peer", peerID, "error", err)
	}
	c.log.Debug(ctx, "sync acknowledged", "peer", peerID)
}

// resolveTrusted maps the sender of a sync message to a trust record,
// registering the connection under the resolved id. Resolution order: exact
// peer id, then migration from the id this connection was registered under,
// then sole device-name match. Identity drift rewrites the trust record to
// the new peer id.
func (c *Coordinator) resolveTrusted(l *link, m *protocol.Message) (string, error) {
	if m.PeerID == "" {
		return "", fmt.Errorf("sync message without sender identity: %w", common.ErrUntrustedPeer)
	}

	if _, err := c.trust.Get(m.PeerID); err == nil {
		c.registerPeer(l, m.PeerID, m.DeviceName)
		return m.PeerID, nil
	}

	c.mu.Lock()
	prior := l.peerID
	c.mu.Unlock()
	if prior != "" && prior != m.PeerID {
		if _, err := c.trust.Get(prior); err == nil {
			if err := c.trust.MigrateID(prior, m.PeerID); err != nil {
				return "", err
			}
			c.registerPeer(l, m.PeerID, m.DeviceName)
			return m.PeerID, nil
		}
	}

	if m.DeviceName != "" {
		rec, ok, err := c.trust.FindSoleByDeviceName(m.DeviceName)
		if err != nil {
			return "", err
		}
		if ok {
			if err := c.trust.MigrateID(rec.PeerID, m.PeerID); err != nil {
				return "", err
			}
			c.registerPeer(l, m.PeerID, m.DeviceName)
			return m.PeerID, nil
		}
	}

	return "", fmt.Errorf("peer %s (%s): %w", m.PeerID, m.DeviceName, common.ErrUntrustedPeer)
}

// loadCheckpoint restores the archived cursor for (peerID, dir); a missing
// checkpoint means syncing from the beginning of history.
func (c *Coordinator) loadCheckpoint(ctx context.Context, peerID string, dir checkpoint.Direction) (delta.Cursor, error) {
	archived, err := c.checkpoints.Load(ctx, peerID, dir)
	if err != nil {
		return nil, err
	}
	if archived == nil {
		return nil, nil
	}
	cursor, err := delta.RestoreCursor(archived)
	if err != nil {
		return nil, fmt.Errorf("restoring checkpoint for %s/%s: %w", peerID, dir, err)
	}
	return cursor, nil
}

func (c *Coordinator) saveCheckpoint(ctx context.Context, peerID string, dir checkpoint.Direction, cursor delta.Cursor) error {
	archived, err := delta.ArchiveCursor(cursor)
	if err != nil {
		return err
	}
	return c.checkpoints.Save(ctx, peerID, dir, archived)
}

// deltaSize approximates the transfer volume of a delta by its encoded size.
func deltaSize(d *delta.Delta) int64 {
	raw, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}
