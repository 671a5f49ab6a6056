package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/p-arndt/leethack/internal/session"
)

type createSessionRequest struct {
	Challenge string `json:"challenge"`
}

type createSessionResponse struct {
	SessionID   string            `json:"session_id"`
	Status      session.Status    `json:"status"`
	Challenge   string            `json:"challenge"`
	Environment map[string]string `json:"environment"`
}

// sessionView is the camelCase session shape the terminal frontend reads.
type sessionView struct {
	SessionID    string         `json:"sessionId"`
	Status       session.Status `json:"status"`
	Challenge    string         `json:"challenge"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	SSHPort      *int           `json:"sshPort"`
	WebPort      *int           `json:"webPort"`
	ContainerID  *string        `json:"containerId,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func newSessionView(s session.Session) sessionView {
	v := sessionView{
		SessionID:    s.ID,
		Status:       s.Status,
		Challenge:    s.ChallengeID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Error:        s.Error,
	}
	if s.Ports != nil {
		ssh, web := s.Ports.SSH, s.Ports.Web
		v.SSHPort, v.WebPort = &ssh, &web
	}
	return v
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func sandboxEnvironment() map[string]string {
	return map[string]string{
		"USER":  "hacker",
		"SHELL": "/bin/bash",
		"PWD":   session.HomeDir,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}
	if err := validateCreateSessionRequest(req); err != nil {
		writeValidationError(w, err.Error(), map[string]interface{}{"field": "challenge"})
		return
	}

	s.logger.Info("create session request", "challenge_id", req.Challenge, "request_id", requestID(r.Context()))
	sess, err := s.manager.Create(r.Context(), req.Challenge)
	if err != nil {
		s.logger.Error("create session", "challenge_id", req.Challenge, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:   sess.ID,
		Status:      sess.Status,
		Challenge:   sess.ChallengeID,
		Environment: sandboxEnvironment(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}
	sess, err := s.manager.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: newSessionView(*sess)})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.manager.List(r.Context())
	if err != nil {
		writeAPIError(w, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		v := newSessionView(sess)
		containerID := sess.ContainerID
		v.ContainerID = &containerID
		views = append(views, v)
	}
	s.logger.Debug("list sessions", "count", len(views))
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: views})
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}
	s.logger.Info("destroy session", "session_id", id)
	if err := s.manager.Destroy(r.Context(), id); err != nil {
		s.logger.Error("destroy session", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Session destroyed successfully"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeValidationError(w, "limit must be an integer", map[string]interface{}{"field": "limit"})
			return
		}
		limit = n
	}
	if err := validateHistoryLimit(limit); err != nil {
		writeValidationError(w, err.Error(), map[string]interface{}{"field": "limit"})
		return
	}

	entries, err := s.manager.History(r.Context(), id, limit)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: entries})
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: s.manager.Challenges()})
}
