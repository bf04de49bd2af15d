package relay

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/coldshalamov/terminal-server/internal/logutil"
	"github.com/coldshalamov/terminal-server/internal/token"
	"github.com/coldshalamov/terminal-server/internal/wire"
)

// Application close codes in the private websocket range.
const (
	closeSuperseded     websocket.StatusCode = 4001
	closeSessionUnknown websocket.StatusCode = 4404
)

// sendTimeout bounds a single write to a peer so one stalled connection
// cannot wedge its session's routing.
const sendTimeout = 10 * time.Second

// wsPeer adapts a websocket connection to the registry's Peer interface.
type wsPeer struct {
	id   string
	conn *websocket.Conn
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{id: uuid.New().String(), conn: conn}
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Send(env wire.Envelope) error {
	frame, err := wire.Encode(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return p.conn.Write(ctx, websocket.MessageText, frame)
}

func (p *wsPeer) Kick(reason string) {
	p.conn.Close(closeSuperseded, reason)
}

// BrowserSocket upgrades and serves a browser-role connection.
func (s *Server) BrowserSocket(w http.ResponseWriter, r *http.Request) {
	s.serveSocket(w, r, token.RoleBrowser)
}

// ConnectorSocket upgrades and serves a connector-role connection.
func (s *Server) ConnectorSocket(w http.ResponseWriter, r *http.Request) {
	s.serveSocket(w, r, token.RoleConnector)
}

// serveSocket gates an inbound connection and wires it into the registry.
// Token problems are rejected before the upgrade; an unknown session is
// reported over the socket as an error envelope and then force-closed,
// because registry state (not token validity) decides session existence.
func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request, role token.Role) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := s.Issuer.VerifyRole(raw, role)
	if err != nil {
		if err == token.ErrRoleMismatch {
			http.Error(w, "role not permitted on this endpoint", http.StatusForbidden)
		} else {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}
		return
	}
	sessionID := claims.SessionID

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.Settings.OriginPatterns,
	})
	if err != nil {
		log.Printf("[ws] accept %s: %v", role, err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(MaxFrameSize)

	peer := newWSPeer(conn)

	if !s.Registry.Exists(sessionID) {
		peer.Send(wire.Error("session not found"))
		conn.Close(closeSessionUnknown, "session not found")
		return
	}

	if !s.Registry.Bind(sessionID, role, peer) {
		// Evicted between the existence check and the bind.
		peer.Send(wire.Error("session not found"))
		conn.Close(closeSessionUnknown, "session not found")
		return
	}
	defer s.Registry.UnbindIfMatches(peer)

	log.Printf("[ws] %s joined session %s (conn %s)", role, logutil.Sanitize(sessionID), peer.id)

	if role == token.RoleConnector {
		s.Registry.ForwardToBrowser(sessionID, wire.Status(wire.StatusConnected, "terminal ready"))
	}

	s.readLoop(r.Context(), conn, peer, sessionID, role)

	log.Printf("[ws] %s left session %s (conn %s)", role, logutil.Sanitize(sessionID), peer.id)
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop pumps envelopes from one peer to the other until the
// connection dies. The destination peer is looked up fresh on every
// message so a mid-session rebind takes effect immediately.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, peer *wsPeer, sessionID string, role token.Role) {
	limiter := NewRateLimiter(MessageRate, MessageBurst)

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}

		if !limiter.Allow() {
			continue
		}

		env, err := wire.Decode(frame)
		if err != nil {
			log.Printf("[ws] conn %s: bad frame: %v", peer.id, err)
			continue
		}

		switch role {
		case token.RoleBrowser:
			s.routeFromBrowser(sessionID, peer, env)
		case token.RoleConnector:
			s.routeFromConnector(sessionID, peer, env)
		}
	}
}

func (s *Server) routeFromBrowser(sessionID string, peer *wsPeer, env wire.Envelope) {
	switch env.Type {
	case wire.TypeInput:
		if len(env.Data) > MaxInputSize {
			log.Printf("[ws] conn %s: input of %d bytes exceeds limit, dropped", peer.id, len(env.Data))
			return
		}
	case wire.TypeResize:
		if env.Cols == 0 || env.Rows == 0 {
			return
		}
		env.Cols, env.Rows = clampResize(env.Cols, env.Rows)
	case wire.TypeClose:
		// Forwarded as-is.
	default:
		log.Printf("[ws] conn %s: dropping %q from browser", peer.id, logutil.Sanitize(env.Type))
		return
	}

	if connector := s.Registry.Peer(sessionID, token.RoleConnector); connector != nil {
		connector.Send(env)
	}
}

func (s *Server) routeFromConnector(sessionID string, peer *wsPeer, env wire.Envelope) {
	switch env.Type {
	case wire.TypeData:
		// Buffered even with no browser bound, for replay on (re)bind.
		s.Registry.AppendOutput(sessionID, env.Data)
	case wire.TypeStatus:
		// Forwarded as-is.
	default:
		log.Printf("[ws] conn %s: dropping %q from connector", peer.id, logutil.Sanitize(env.Type))
		return
	}

	s.Registry.ForwardToBrowser(sessionID, env)
}
