package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/p-arndt/leethack/internal/config"
)

const (
	ServiceName = "LeetHack Backend"
	Version     = "0.1.0"
)

type Server struct {
	cfg      *config.Config
	manager  SessionService
	logger   *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, mgr SessionService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		manager: mgr,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.requestIDMiddleware(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/challenges", s.handleListChallenges)

	s.mux.HandleFunc("POST /api/terminal/session", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/terminal/session/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/terminal/session/{id}", s.handleDestroySession)
	s.mux.HandleFunc("GET /api/terminal/session/{id}/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/terminal/execute", s.handleExecute)
	s.mux.HandleFunc("GET /api/terminal/ws/{id}", s.handleTerminalSocket)

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
}

// checkOrigin admits same-host clients and the configured frontend origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == s.cfg.CORSOrigin {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
		"version": Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
