// Package coordinator ties discovery, transport, pairing, trust and the
// delta engine into one state machine. All connection and session state is
// serialized behind a single mutex; per-connection read loops run in their
// own goroutines and funnel every inbound message through handleMessage.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/config"
	"github.com/ledgerlink/pairsync/internal/delta"
	"github.com/ledgerlink/pairsync/internal/logging"
	"github.com/ledgerlink/pairsync/internal/pairing"
	"github.com/ledgerlink/pairsync/internal/protocol"
	"github.com/ledgerlink/pairsync/internal/store/checkpoint"
	"github.com/ledgerlink/pairsync/internal/store/identity"
	"github.com/ledgerlink/pairsync/internal/store/stats"
	"github.com/ledgerlink/pairsync/internal/store/trust"
	"github.com/ledgerlink/pairsync/internal/transport"
)

// Deps are the collaborators a Coordinator is built from. Config, Logger,
// Discovery, Identity, Trust, Checkpoints, Stats and Engine are required;
// Dial and Listen default to the TCP transport when nil.
type Deps struct {
	Config      *config.Config
	Logger      logging.Logger
	Discovery   transport.Discovery
	Identity    *identity.Manager
	Trust       *trust.Store
	Checkpoints checkpoint.Store
	Stats       stats.Store
	Engine      *delta.Engine

	Dial   func(ctx context.Context, addr string) (*transport.Conn, error)
	Listen func(addr string) (*transport.Listener, error)
}

func (d *Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("coordinator: Config is required")
	case d.Logger == nil:
		return errors.New("coordinator: Logger is required")
	case d.Discovery == nil:
		return errors.New("coordinator: Discovery is required")
	case d.Identity == nil:
		return errors.New("coordinator: Identity is required")
	case d.Trust == nil:
		return errors.New("coordinator: Trust is required")
	case d.Checkpoints == nil:
		return errors.New("coordinator: Checkpoints is required")
	case d.Stats == nil:
		return errors.New("coordinator: Stats is required")
	case d.Engine == nil:
		return errors.New("coordinator: Engine is required")
	}
	return nil
}

// link is one live connection. peerID stays empty until the peer identified
// itself through pairing or a trusted sync message.
type link struct {
	conn       *transport.Conn
	peerID     string
	deviceName string

	// Provider-side pairing state, set by pairHello and used by pairDone.
	sessionID        string
	helloPeerID      string
	helloDeviceName  string
	helloFingerprint string
}

// Coordinator is the engine facade the UI layer talks to.
type Coordinator struct {
	cfg         *config.Config
	log         logging.Logger
	discovery   transport.Discovery
	identity    *identity.Manager
	trust       *trust.Store
	checkpoints checkpoint.Store
	stats       stats.Store
	engine      *delta.Engine
	dial        func(ctx context.Context, addr string) (*transport.Conn, error)
	listen      func(addr string) (*transport.Listener, error)

	sessions *pairing.Sessions
	events   *subscribers

	mu            sync.Mutex
	stopped       bool
	listener      *transport.Listener
	stopAdvertise func()
	links         map[*link]struct{}
	byPeer        map[string]*link
	approvals     map[string]struct{}
}

func New(d Deps) (*Coordinator, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Dial == nil {
		d.Dial = transport.Dial
	}
	if d.Listen == nil {
		d.Listen = transport.Listen
	}
	return &Coordinator{
		cfg:         d.Config,
		log:         d.Logger,
		discovery:   d.Discovery,
		identity:    d.Identity,
		trust:       d.Trust,
		checkpoints: d.Checkpoints,
		stats:       d.Stats,
		engine:      d.Engine,
		dial:        d.Dial,
		listen:      d.Listen,
		sessions:    pairing.NewSessions(),
		events:      newSubscribers(),
		links:       make(map[*link]struct{}),
		byPeer:      make(map[string]*link),
		approvals:   make(map[string]struct{}),
	}, nil
}

// Subscribe registers a listener for coordinator events. The returned
// function unsubscribes it. Callbacks run outside the coordinator lock.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	return c.events.add(fn)
}

// StartHosting binds the listener and advertises the service so scanners and
// reconnecting peers can find this device. Calling it while already hosting
// is a no-op.
func (c *Coordinator) StartHosting(ctx context.Context) error {
	local, err := c.identity.Local()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("coordinator stopped: %w", common.ErrConnNotReady)
	}
	if c.listener != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	l, err := c.listen(c.cfg.ListenAddr)
	if err != nil {
		return err
	}
	go l.Serve(func(conn *transport.Conn) { c.attach(conn) })

	stop, err := c.discovery.Advertise(c.cfg.DeviceName, l.Port(), map[string]string{
		transport.TxtPeerID: local.PeerID,
	})
	if err != nil {
		_ = l.Close()
		return fmt.Errorf("advertising service: %w", err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		stop()
		_ = l.Close()
		return fmt.Errorf("coordinator stopped: %w", common.ErrConnNotReady)
	}
	c.listener = l
	c.stopAdvertise = stop
	c.mu.Unlock()

	c.log.Info(ctx, "hosting started", "device", c.cfg.DeviceName, "port", l.Port())
	return nil
}

// Stop tears down the listener, the advertisement and every live connection.
// Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	l := c.listener
	stop := c.stopAdvertise
	conns := make([]*transport.Conn, 0, len(c.links))
	for lk := range c.links {
		conns = append(conns, lk.conn)
	}
	c.listener = nil
	c.stopAdvertise = nil
	c.links = make(map[*link]struct{})
	c.byPeer = make(map[string]*link)
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if l != nil {
		_ = l.Close()
	}
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// ReconnectToTrustedPeer browses for any previously paired peer and
// re-establishes a connection to the first one found. Browsing is bounded by
// the reconnect timeout and self-cancels when nothing shows up.
func (c *Coordinator) ReconnectToTrustedPeer(ctx context.Context) error {
	local, err := c.identity.Local()
	if err != nil {
		return err
	}
	trusted, err := c.trust.All()
	if err != nil {
		return err
	}
	if len(trusted) == 0 {
		return fmt.Errorf("no trusted peers: %w", common.ErrorNotFound)
	}

	byID := make(map[string]trust.Record, len(trusted))
	for _, rec := range trusted {
		byID[rec.PeerID] = rec
	}

	bctx, cancel := context.WithTimeout(ctx, c.cfg.ReconnectTimeout)
	defer cancel()

	found := make(chan matchedEndpoint, 1)
	err = c.discovery.Browse(bctx, func(ep transport.Endpoint) {
		if ep.PeerID == local.PeerID {
			return
		}
		rec, ok := c.matchTrusted(ep, byID)
		if !ok {
			return
		}
		select {
		case found <- matchedEndpoint{ep: ep, rec: rec}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("browsing for trusted peers: %w", err)
	}

	select {
	case m := <-found:
		conn, err := c.dial(ctx, m.ep.Addr)
		if err != nil {
			return err
		}
		l := c.attach(conn)
		if l == nil {
			return fmt.Errorf("coordinator stopped: %w", common.ErrConnNotReady)
		}
		c.registerPeer(l, m.rec.PeerID, m.rec.DeviceName)
		c.events.emit(PeerConnected{PeerID: m.rec.PeerID, DeviceName: m.rec.DeviceName})
		c.log.Info(ctx, "reconnected to trusted peer", "peer", m.rec.PeerID, "device", m.rec.DeviceName)
		return nil
	case <-bctx.Done():
		return fmt.Errorf("no trusted peer found on the network: %w", common.ErrPeerNotConnected)
	}
}

type matchedEndpoint struct {
	ep  transport.Endpoint
	rec trust.Record
}

// matchTrusted maps a discovered endpoint to a trust record: by advertised
// peer id first, then by sole instance-name match (identity drift).
func (c *Coordinator) matchTrusted(ep transport.Endpoint, byID map[string]trust.Record) (trust.Record, bool) {
	if rec, ok := byID[ep.PeerID]; ok {
		return rec, true
	}
	rec, ok, err := c.trust.FindSoleByDeviceName(ep.Instance)
	if err != nil || !ok {
		return trust.Record{}, false
	}
	return *rec, true
}

// attach registers a connection and starts its read loop. Returns nil when
// the coordinator is already stopped.
func (c *Coordinator) attach(conn *transport.Conn) *link {
	l := &link{conn: conn}
	if !c.attachLink(l) {
		return nil
	}
	return l
}

// attachLink registers a prepared link and starts its read loop.
func (c *Coordinator) attachLink(l *link) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = l.conn.Close()
		return false
	}
	c.links[l] = struct{}{}
	c.mu.Unlock()

	go l.conn.ReadLoop(
		func(m *protocol.Message) { c.handleMessage(l, m) },
		func(err error) { c.handleFailure(l, err) },
	)
	return true
}

// registerPeer maps a link to its identified peer. A previous mapping for the
// same peer is superseded and its connection closed.
func (c *Coordinator) registerPeer(l *link, peerID, deviceName string) {
	c.mu.Lock()
	if l.peerID != "" && l.peerID != peerID {
		delete(c.byPeer, l.peerID)
	}
	old := c.byPeer[peerID]
	c.byPeer[peerID] = l
	l.peerID = peerID
	l.deviceName = deviceName
	if old != nil && old != l {
		delete(c.links, old)
	}
	c.mu.Unlock()

	if old != nil && old != l {
		_ = old.conn.Close()
	}
}

// peerOf reads the link's registered peer id under the lock.
func (c *Coordinator) peerOf(l *link) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return l.peerID
}

func (c *Coordinator) handleFailure(l *link, err error) {
	ctx := context.Background()
	c.log.Debug(ctx, "connection lost", "addr", l.conn.RemoteAddr(), "peer", c.peerOf(l), "error", err)

	c.mu.Lock()
	delete(c.links, l)
	if l.peerID != "" && c.byPeer[l.peerID] == l {
		delete(c.byPeer, l.peerID)
	}
	c.mu.Unlock()

	_ = l.conn.Close()
}

// dropLink removes a link after a protocol-level rejection.
func (c *Coordinator) dropLink(l *link) {
	c.mu.Lock()
	delete(c.links, l)
	if l.peerID != "" && c.byPeer[l.peerID] == l {
		delete(c.byPeer, l.peerID)
	}
	c.mu.Unlock()

	_ = l.conn.Close()
}

// handleMessage is the single dispatch point for inbound traffic. The
// protocol version gate runs before any type-specific handling.
func (c *Coordinator) handleMessage(l *link, m *protocol.Message) {
	ctx := context.Background()

	if m.ProtocolVersion != common.ProtocolVersion {
		c.log.Warn(ctx, "rejecting message with incompatible protocol version",
			"got", m.ProtocolVersion, "want", common.ProtocolVersion, "type", string(m.Type))
		_ = l.conn.Send(protocol.NewError(protocol.CodeIncompatibleProtocolVersion,
			fmt.Sprintf("local protocol version is %d", common.ProtocolVersion)))
		c.dropLink(l)
		return
	}

	switch m.Type {
	case protocol.TypePairHello:
		c.handlePairHello(ctx, l, m)
	case protocol.TypePairConfirm:
		c.handlePairConfirm(ctx, l, m)
	case protocol.TypePairDone:
		c.handlePairDone(ctx, l, m)
	case protocol.TypeSyncRequest:
		c.handleSyncRequest(ctx, l, m)
	case protocol.TypeSyncResponse:
		c.handleSyncResponse(ctx, l, m)
	case protocol.TypeAck:
		c.handleAck(ctx, l, m)
	case protocol.TypeError:
		c.log.Warn(ctx, "peer reported error", "peer", c.peerOf(l), "code", m.ErrorCode, "message", m.ErrorMessage)
	default:
		c.log.Warn(ctx, "ignoring message of unknown type", "type", string(m.Type))
	}
}

// ForgetAllPeerSyncData removes every trust record, checkpoint and stats row
// and disconnects current peers. The local identity survives.
func (c *Coordinator) ForgetAllPeerSyncData(ctx context.Context) error {
	c.mu.Lock()
	conns := make([]*transport.Conn, 0, len(c.byPeer))
	for _, l := range c.byPeer {
		conns = append(conns, l.conn)
		delete(c.links, l)
	}
	c.byPeer = make(map[string]*link)
	c.approvals = make(map[string]struct{})
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	if err := c.trust.RemoveAll(); err != nil {
		return err
	}
	if err := c.checkpoints.RemoveAll(ctx); err != nil {
		return err
	}
	if err := c.stats.RemoveAll(ctx); err != nil {
		return err
	}
	c.log.Info(ctx, "forgot all peer sync data")
	return nil
}

// PeerStatus describes one live connection.
type PeerStatus struct {
	PeerID     string
	DeviceName string
}

// Status is a point-in-time snapshot of the coordinator state.
type Status struct {
	Hosting         bool
	ListenPort      int
	ConnectedPeers  []PeerStatus
	PendingSessions int
}

// StatusSnapshot reports the current hosting and connection state.
func (c *Coordinator) StatusSnapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Hosting:         c.listener != nil,
		PendingSessions: c.sessions.Len(),
	}
	if c.listener != nil {
		s.ListenPort = c.listener.Port()
	}
	for id, l := range c.byPeer {
		s.ConnectedPeers = append(s.ConnectedPeers, PeerStatus{PeerID: id, DeviceName: l.deviceName})
	}
	return s
}

func now() time.Time { return time.Now().UTC() }
