// Package registry implements the relay's pairing table. A session binds
// at most one browser-role and one connector-role peer; the registry
// routes lookups between them, buffers recent output for browser replay,
// and evicts idle sessions on a periodic sweep.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coldshalamov/terminal-server/internal/token"
	"github.com/coldshalamov/terminal-server/internal/wire"
)

// Peer is the registry's view of a bound connection. The role handler
// owns the socket; the registry stores only enough to route messages and
// compare identity on disconnect.
type Peer interface {
	// ID is a unique identity for the physical connection.
	ID() string
	// Send delivers one envelope to the peer.
	Send(env wire.Envelope) error
	// Kick force-closes the peer with the given reason. Called when a
	// newer connection supersedes this one.
	Kick(reason string)
}

// DefaultMaxIdle is the inactivity threshold after which a session is
// evicted from the table.
const DefaultMaxIdle = 24 * time.Hour

// Session is one pairing unit: two optional role slots plus the output
// buffer used for browser replay. browserGate serializes replay against
// live forwards so buffered history always reaches a fresh browser
// before newer traffic, without holding the registry lock across sends.
type Session struct {
	ID           string
	browser      Peer
	connector    Peer
	createdAt    time.Time
	lastActivity time.Time
	buffer       *OutputBuffer
	browserGate  sync.Mutex
}

// Registry is the session pairing table. All methods are safe for
// concurrent use.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	bufferSize int
}

// New creates an empty Registry. bufferSize bounds each session's replay
// buffer; zero means DefaultBufferSize.
func New(bufferSize int) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		bufferSize: bufferSize,
	}
}

// Create allocates a fresh session with no bound peers and returns its ID.
func (r *Registry) Create() string {
	id := uuid.New().String()
	now := time.Now()

	r.mu.Lock()
	r.sessions[id] = &Session{
		ID:           id,
		createdAt:    now,
		lastActivity: now,
		buffer:       NewOutputBuffer(r.bufferSize),
	}
	r.mu.Unlock()

	log.Printf("[registry] session %s created", id)
	return id
}

// Exists reports whether the session is currently in the table. Token
// validity alone never resurrects an evicted session.
func (r *Registry) Exists(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// Bind attaches p to the session's slot for the given role, superseding
// any previous peer in that slot. Binding a browser replays the entire
// output buffer to p, oldest-first, before the method returns; the
// replay happens outside the registry lock, with the session's browser
// gate held, so a slow browser stalls only its own session while live
// forwards still wait behind the replay. A superseded peer that is a
// different physical connection is force-closed after the slot changes
// hands.
//
// Returns false if the session is unknown.
func (r *Registry) Bind(sessionID string, role token.Role, p Peer) bool {
	if role != token.RoleBrowser && role != token.RoleConnector {
		return false
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	if role == token.RoleConnector {
		r.mu.Lock()
		if _, ok := r.sessions[sessionID]; !ok {
			r.mu.Unlock()
			return false
		}
		var superseded Peer
		if s.connector != nil && s.connector.ID() != p.ID() {
			superseded = s.connector
		}
		s.connector = p
		s.lastActivity = time.Now()
		r.mu.Unlock()

		kickSuperseded(sessionID, role, superseded)
		return true
	}

	// Browser bind. The gate is taken before re-entering the registry
	// lock (never the other way around) so no forward can slip between
	// the slot change and the replay, and a wedged replay on one
	// session cannot block the registry.
	s.browserGate.Lock()
	defer s.browserGate.Unlock()

	r.mu.Lock()
	if _, ok := r.sessions[sessionID]; !ok {
		// Evicted while waiting on the gate.
		r.mu.Unlock()
		return false
	}
	var superseded Peer
	if s.browser != nil && s.browser.ID() != p.ID() {
		superseded = s.browser
	}
	s.browser = p
	s.lastActivity = time.Now()
	snapshot := s.buffer.Snapshot()
	r.mu.Unlock()

	for _, chunk := range snapshot {
		if err := p.Send(wire.Data(chunk)); err != nil {
			// The new connection died mid-replay; the handler's close
			// path will unbind it.
			break
		}
	}

	kickSuperseded(sessionID, role, superseded)
	return true
}

func kickSuperseded(sessionID string, role token.Role, superseded Peer) {
	if superseded == nil {
		return
	}
	log.Printf("[registry] session %s: %s slot superseded, closing stale connection %s",
		sessionID, role, superseded.ID())
	superseded.Kick("superseded by newer connection")
}

// ForwardToBrowser delivers one envelope to the session's bound
// browser, if any. Delivery waits for an in-progress replay on the same
// session, so live output never overtakes buffered history.
func (r *Registry) ForwardToBrowser(sessionID string, env wire.Envelope) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	s.browserGate.Lock()
	defer s.browserGate.Unlock()

	r.mu.Lock()
	if _, ok := r.sessions[sessionID]; !ok {
		r.mu.Unlock()
		return
	}
	browser := s.browser
	r.mu.Unlock()

	if browser != nil {
		browser.Send(env)
	}
}

// Peer returns the current peer bound to the given role, or nil. Callers
// route every message through a fresh lookup so a mid-session rebind is
// honored on the next message.
func (r *Registry) Peer(sessionID string, role token.Role) Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if role == token.RoleBrowser {
		return s.browser
	}
	return s.connector
}

// UnbindIfMatches clears any role slot across all sessions that holds
// exactly this peer identity. Clearing a connector slot notifies the
// still-bound browser, if any, with a disconnected status. Slots holding
// a different (superseding) connection are left untouched.
func (r *Registry) UnbindIfMatches(p Peer) {
	type notice struct {
		browser Peer
	}
	var notices []notice

	r.mu.Lock()
	for _, s := range r.sessions {
		if s.browser != nil && s.browser.ID() == p.ID() {
			s.browser = nil
			log.Printf("[registry] session %s: browser disconnected", s.ID)
		}
		if s.connector != nil && s.connector.ID() == p.ID() {
			s.connector = nil
			log.Printf("[registry] session %s: connector disconnected", s.ID)
			if s.browser != nil {
				notices = append(notices, notice{browser: s.browser})
			}
		}
	}
	r.mu.Unlock()

	for _, n := range notices {
		n.browser.Send(wire.Status(wire.StatusDisconnected, "connector disconnected"))
	}
}

// AppendOutput buffers a chunk of terminal output for later browser
// replay and refreshes the session's activity timestamp. Unknown
// sessions are a no-op.
func (r *Registry) AppendOutput(sessionID, chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.buffer.Append(chunk)
	s.lastActivity = time.Now()
}

// Remove drops a session from the table. Bound peers are not closed;
// they simply lose their pairing.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// EvictIdle removes every session whose last activity is older than
// maxAge and returns the number evicted. Sessions with both roles bound
// are exempt: an active pairing is never dropped for idleness alone.
func (r *Registry) EvictIdle(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxIdle
	}
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.sessions {
		if s.browser != nil && s.connector != nil {
			continue
		}
		if s.lastActivity.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
			log.Printf("[registry] session %s evicted (idle since %s)",
				id, s.lastActivity.Format(time.RFC3339))
		}
	}
	return evicted
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
