package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/p-arndt/leethack/internal/session"
)

type executeRequest struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
}

// handleExecute always answers 200 once the body is well-formed: engine
// failures are rendered as the command's output so the terminal can print
// them like any other result.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error(), nil)
		return
	}
	if err := validateExecuteRequest(req); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	// No session can carry a malformed id.
	if err := ValidateSessionID(req.SessionID); err != nil {
		writeJSON(w, http.StatusOK, session.ErrorResult(req.SessionID, req.Command,
			fmt.Errorf("%w: %s", session.ErrNotFound, req.SessionID)))
		return
	}

	s.logger.Debug("execute", "session_id", req.SessionID, "command", req.Command)
	result, err := s.manager.Execute(r.Context(), req.SessionID, req.Command)
	if err != nil {
		s.logger.Warn("execute", "session_id", req.SessionID, "error", err)
		result = session.ErrorResult(req.SessionID, req.Command, err)
	}
	writeJSON(w, http.StatusOK, result)
}

const (
	msgConnected      = "connected"
	msgCommand        = "command"
	msgCommandResult  = "command_result"
	msgInput          = "input"
	msgOutput         = "output"
	msgInteractiveEnd = "interactive_end"
	msgError          = "error"

	socketWriteWait   = 10 * time.Second
	interactiveBuffer = 64
)

type clientMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Input   string `json:"input"`
}

type serverMessage struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id,omitempty"`
	Command   string     `json:"command,omitempty"`
	Output    *string    `json:"output,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Data      string     `json:"data,omitempty"`
	Message   string     `json:"message,omitempty"`
}

func commandResultMessage(res *session.ExecResult) serverMessage {
	return serverMessage{
		Type:      msgCommandResult,
		Command:   res.Command,
		Output:    &res.Output,
		ExitCode:  &res.ExitCode,
		Timestamp: &res.Timestamp,
	}
}

// terminalConn serializes writes: command results and relay output are
// produced by different goroutines.
type terminalConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *terminalConn) send(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return c.ws.WriteJSON(msg)
}

// interactiveRun is one relay in flight on a terminal socket. The socket
// loop is the only sender on in and closes it once done is closed.
type interactiveRun struct {
	in   chan string
	done chan struct{}
}

func (s *Server) handleTerminalSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateSessionID(id); err != nil {
		writeValidationError(w, err.Error(), nil)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade websocket", "session_id", id, "error", err)
		return
	}
	defer ws.Close()
	conn := &terminalConn{ws: ws}
	logger := s.logger.With("session_id", id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if _, err := s.manager.Get(ctx, id); err != nil {
		conn.send(serverMessage{Type: msgError, Message: "Session not found"})
		return
	}
	if err := conn.send(serverMessage{Type: msgConnected, SessionID: id}); err != nil {
		return
	}
	logger.Info("terminal connected")

	msgs := make(chan clientMessage)
	go func() {
		defer close(msgs)
		for {
			var msg clientMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("terminal read", "error", err)
				}
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	var run *interactiveRun
	defer func() {
		if run != nil {
			close(run.in)
			<-run.done
		}
		logger.Info("terminal disconnected")
	}()

	for {
		var runDone <-chan struct{}
		if run != nil {
			runDone = run.done
		}

		select {
		case msg, ok := <-msgs:
			if !ok {
				cancel()
				return
			}
			switch msg.Type {
			case msgCommand:
				if msg.Command == "" {
					continue
				}
				if run != nil {
					conn.send(serverMessage{Type: msgError, Message: "An interactive command is already running"})
					continue
				}
				if session.IsInteractive(msg.Command) {
					run = s.startInteractive(ctx, conn, id, msg.Command)
					continue
				}
				s.runCommand(ctx, conn, id, msg.Command)
			case msgInput:
				if run == nil {
					logger.Debug("input without interactive command")
					continue
				}
				select {
				case run.in <- msg.Input:
				case <-run.done:
				}
			default:
				logger.Debug("unknown terminal message", "type", msg.Type)
			}
		case <-runDone:
			close(run.in)
			run = nil
		}
	}
}

func (s *Server) runCommand(ctx context.Context, conn *terminalConn, id, command string) {
	res, err := s.manager.Execute(ctx, id, command)
	if err != nil {
		s.logger.Warn("terminal command", "session_id", id, "error", err)
		conn.send(serverMessage{Type: msgError, Message: "Command execution failed: " + err.Error()})
		return
	}
	conn.send(commandResultMessage(res))
}

func (s *Server) startInteractive(ctx context.Context, conn *terminalConn, id, command string) *interactiveRun {
	run := &interactiveRun{
		in:   make(chan string, interactiveBuffer),
		done: make(chan struct{}),
	}
	out := make(chan string, interactiveBuffer)
	errc := make(chan error, 1)

	go func() {
		errc <- s.manager.ExecuteInteractive(ctx, id, command, run.in, out)
	}()

	go func() {
		defer close(run.done)
		for data := range out {
			conn.send(serverMessage{Type: msgOutput, Data: data})
		}
		if err := <-errc; err != nil {
			conn.send(serverMessage{Type: msgError, Message: "Command execution failed: " + err.Error()})
			return
		}
		conn.send(serverMessage{Type: msgInteractiveEnd, Command: command})
	}()

	return run
}
