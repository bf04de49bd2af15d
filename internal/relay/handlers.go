// Package relay implements the relay server's HTTP surface and the two
// role-scoped websocket handlers that wire connections into the session
// registry.
package relay

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/coldshalamov/terminal-server/internal/config"
	"github.com/coldshalamov/terminal-server/internal/registry"
	"github.com/coldshalamov/terminal-server/internal/token"
)

// Server bundles the relay's collaborators. Handlers hang off it rather
// than package-level state so tests can build isolated instances.
type Server struct {
	Registry *registry.Registry
	Issuer   *token.Issuer
	Settings config.Settings
}

// NewServer creates a relay Server around an existing registry and issuer.
func NewServer(reg *registry.Registry, issuer *token.Issuer, settings config.Settings) *Server {
	return &Server{Registry: reg, Issuer: issuer, Settings: settings}
}

// Router builds the chi router with all HTTP and websocket routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.Health)
	r.Post("/api/session", s.CreateSession)
	r.Post("/api/connect", s.ValidateConnector)
	r.Get("/ws/browser", s.BrowserSocket)
	r.Get("/ws/connector", s.ConnectorSocket)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkSecret verifies the shared secret gating session creation. When a
// bcrypt hash is configured it takes precedence over the plaintext secret.
func (s *Server) checkSecret(provided string) bool {
	if provided == "" {
		return false
	}
	if s.Settings.SharedSecretHash != "" {
		return bcrypt.CompareHashAndPassword(
			[]byte(s.Settings.SharedSecretHash), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare(
		[]byte(s.Settings.SharedSecret), []byte(provided)) == 1
}

type createSessionRequest struct {
	Secret string `json:"secret"`
}

type createSessionResponse struct {
	SessionID      string `json:"sessionId"`
	BrowserToken   string `json:"browserToken"`
	ConnectorToken string `json:"connectorToken"`
}

// CreateSession mints a fresh session plus one token per role. The caller
// authenticates with the shared secret, either as a Bearer header or a
// "secret" body field.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	// Body is optional when the secret arrives via header.
	json.NewDecoder(r.Body).Decode(&req)

	provided := req.Secret
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		provided = strings.TrimPrefix(auth, "Bearer ")
	}

	if !s.checkSecret(provided) {
		writeError(w, http.StatusUnauthorized, "invalid or missing authentication")
		return
	}

	sessionID := s.Registry.Create()

	browserToken, err := s.Issuer.Mint(sessionID, token.RoleBrowser)
	if err != nil {
		log.Printf("[api] mint browser token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	connectorToken, err := s.Issuer.Mint(sessionID, token.RoleConnector)
	if err != nil {
		log.Printf("[api] mint connector token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:      sessionID,
		BrowserToken:   browserToken,
		ConnectorToken: connectorToken,
	})
}

type validateRequest struct {
	Token string `json:"token"`
}

// ValidateConnector confirms that a connector token is valid and that its
// session is still live in the registry.
func (s *Server) ValidateConnector(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	claims, err := s.Issuer.VerifyRole(req.Token, token.RoleConnector)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid connector token")
		return
	}

	if !s.Registry.Exists(claims.SessionID) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": claims.SessionID,
		"message":   "ready to connect via websocket",
	})
}
