package coordinator

import (
	"sync"

	"github.com/ledgerlink/pairsync/internal/store/checkpoint"
)

// Event is the typed notification surface consumed by the UI layer.
type Event interface{ event() }

// PeerConnected fires when a handshake or reconnect registers a live
// connection for a trusted peer.
type PeerConnected struct {
	PeerID     string
	DeviceName string
}

// SyncActivity fires when a sync exchange starts or stops. Direction names
// the checkpoint lane the exchange advances: DirectionOutgoing while pulling
// remote changes, DirectionIncoming while serving our own.
type SyncActivity struct {
	PeerID    string
	Direction checkpoint.Direction
	Active    bool
}

// SyncApprovalRequested fires when an unsolicited incoming sync request
// needs a one-shot user approval before it will be served.
type SyncApprovalRequested struct {
	PeerID     string
	DeviceName string
}

func (PeerConnected) event()         {}
func (SyncActivity) event()          {}
func (SyncApprovalRequested) event() {}

type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]func(Event))}
}

// add registers fn and returns an unsubscribe function.
func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) emit(e Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
