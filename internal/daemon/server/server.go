// Package server provides the HTTP and websocket surface of the relay daemon.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/relay/internal/daemon/hub"
	"github.com/grovetools/relay/internal/daemon/router"
	"github.com/grovetools/relay/internal/daemon/store"
)

const (
	defaultCwdLimit = 5
	maxCwdLimit     = 20
)

// Server manages the daemon's HTTP listener: a health endpoint, a small REST
// API, and the client websocket.
type Server struct {
	logger    *logrus.Entry
	server    *http.Server
	router    *router.Router
	hub       *hub.Hub
	store     *store.Store
	authToken string
	upgrader  websocket.Upgrader
}

// New creates a new Server instance. An empty authToken disables auth, for
// loopback-only deployments.
func New(rt *router.Router, h *hub.Hub, st *store.Store, authToken string, logger *logrus.Entry) *Server {
	return &Server{
		logger:    logger,
		router:    rt,
		hub:       h,
		store:     st,
		authToken: authToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The daemon fronts local UI clients; browser origin checks
			// are handled by the auth token instead.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the daemon's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/recent-cwds", s.handleRecentCwds)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return mux
}

// ListenAndServe starts the daemon on the given address. It blocks until the
// server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Daemon listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth reports daemon liveness and the current client count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"connections": s.hub.Count(),
	})
}

// handleRecentCwds returns the most recently used working directories. The
// limit query parameter is clamped to 1..20.
func (s *Server) handleRecentCwds(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r.Header.Get("Authorization")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := defaultCwdLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxCwdLimit {
		limit = maxCwdLimit
	}

	cwds, err := s.store.ListRecentCwds(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list recent cwds")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if cwds == nil {
		cwds = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"cwds": cwds})
}

// handleWebsocket authenticates via the token query parameter, upgrades the
// connection, and hands it to the router for the life of the socket.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.authToken != "" && r.URL.Query().Get("token") != s.authToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Client connected")
	s.router.HandleConnection(conn)
	s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Client disconnected")
}

func (s *Server) authorized(header string) bool {
	if s.authToken == "" {
		return true
	}
	return header == "Bearer "+s.authToken
}
