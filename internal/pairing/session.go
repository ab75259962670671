package pairing

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/pairsync/internal/common"
	"github.com/ledgerlink/pairsync/internal/shared"
)

// Session is the provider-side ephemeral record backing one pairing payload.
type Session struct {
	ID        string
	Secret    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session lifetime has passed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Sessions is the registry of active pairing sessions. A session is created
// when a QR payload is generated and removed on completion or expiry sweep.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

// Create registers a new session with a random secret and the given
// lifetime, returning the session together with the payload to render.
func (r *Sessions) Create(lifetime time.Duration, serviceType, expectedPeerName string) (*Session, *Payload, error) {
	secret, err := shared.MakeRandHexString(32)
	if err != nil {
		return nil, nil, fmt.Errorf("generating pairing secret: %w", err)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	p := &Payload{
		SessionID:        s.ID,
		ServiceType:      serviceType,
		ExpectedPeerName: expectedPeerName,
		Secret:           secret,
		ProtocolVersion:  common.ProtocolVersion,
		ExpiresAt:        s.ExpiresAt,
	}
	return s, p, nil
}

// Validate checks that the session exists, has not expired, and that the
// presented secret matches. Expired sessions are dropped on sight.
func (r *Sessions) Validate(id, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownSession, id)
	}
	if s.Expired(time.Now()) {
		delete(r.sessions, id)
		return fmt.Errorf("%w: %s", common.ErrExpiredSession, id)
	}
	if s.Secret != secret {
		return fmt.Errorf("%w: session %s", common.ErrSecretMismatch, id)
	}
	return nil
}

// Consume removes a completed session. It is a no-op for unknown ids.
func (r *Sessions) Consume(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Sweep drops all sessions expired at the given time and returns how many
// were removed.
func (r *Sessions) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of active sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
