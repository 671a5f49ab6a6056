package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/p-arndt/leethack/internal/session"
	"github.com/p-arndt/leethack/internal/testutil"
)

func TestHandleExecute_Success(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)

	mockMgr.On("Execute", mock.Anything, testSessionID, "whoami").Return(&session.ExecResult{
		SessionID:  testSessionID,
		Command:    "whoami",
		Output:     "hacker\n",
		ExitCode:   0,
		DurationMs: 42,
		Timestamp:  time.Now().UTC(),
	}, nil)

	req := testutil.JSONRequest(t, "POST", "/api/terminal/execute", executeRequest{SessionID: testSessionID, Command: "whoami"})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res session.ExecResult
	testutil.DecodeJSON(t, rec, &res)
	assert.Equal(t, "hacker\n", res.Output)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, int64(42), res.DurationMs)
}

func TestHandleExecute_EngineErrorIsInBand(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)

	mockMgr.On("Execute", mock.Anything, testSessionID, "ls").
		Return(nil, fmt.Errorf("%w: %s", session.ErrNotFound, testSessionID))

	req := testutil.JSONRequest(t, "POST", "/api/terminal/execute", executeRequest{SessionID: testSessionID, Command: "ls"})
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res session.ExecResult
	testutil.DecodeJSON(t, rec, &res)
	assert.Equal(t, 1, res.ExitCode)
	assert.True(t, strings.HasPrefix(res.Output, "Error: session not found"))
	assert.Equal(t, testSessionID, res.SessionID)
	assert.Equal(t, "ls", res.Command)
}

func TestHandleExecute_BadRequests(t *testing.T) {
	s := testAPIServer(&MockSessionService{})

	for _, payload := range []string{"not json", "", `{"session_id":"abc","command":"ls"}{"command":"id"}`} {
		rec := serve(s, testutil.RawJSONRequest("POST", "/api/terminal/execute", payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}

	big := executeRequest{SessionID: testSessionID, Command: strings.Repeat("a", maxCommandBytes+1)}
	rec := serve(s, testutil.JSONRequest(t, "POST", "/api/terminal/execute", big))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecute_MalformedSessionIDIsInBand(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)

	for _, id := range []string{"", "abc_def", "../etc", strings.Repeat("a", 65)} {
		t.Run(id, func(t *testing.T) {
			req := testutil.JSONRequest(t, "POST", "/api/terminal/execute", executeRequest{SessionID: id, Command: "ls"})
			rec := serve(s, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var res session.ExecResult
			testutil.DecodeJSON(t, rec, &res)
			assert.Equal(t, 1, res.ExitCode)
			assert.Equal(t, "Error: session not found: "+id, res.Output)
			assert.Equal(t, id, res.SessionID)
			assert.Equal(t, "ls", res.Command)
		})
	}
	mockMgr.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func dialTerminal(t *testing.T, s *Server, id string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/terminal/ws/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestTerminalSocket_UnknownSession(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)
	mockMgr.On("Get", mock.Anything, testSessionID).Return(nil, session.ErrNotFound)

	conn := dialTerminal(t, s, testSessionID)

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Session not found", msg["message"])

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestTerminalSocket_Command(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)
	mockMgr.On("Get", mock.Anything, testSessionID).Return(testutil.TestSession(testSessionID), nil)
	mockMgr.On("Execute", mock.Anything, testSessionID, "id").Return(&session.ExecResult{
		SessionID: testSessionID,
		Command:   "id",
		Output:    "uid=0(root)\n",
		ExitCode:  0,
		Timestamp: time.Now().UTC(),
	}, nil)
	mockMgr.On("Execute", mock.Anything, testSessionID, "false").Return(nil, session.ErrStopped)

	conn := dialTerminal(t, s, testSessionID)

	msg := readMessage(t, conn)
	assert.Equal(t, "connected", msg["type"])
	assert.Equal(t, testSessionID, msg["session_id"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "id"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "command_result", msg["type"])
	assert.Equal(t, "id", msg["command"])
	assert.Equal(t, "uid=0(root)\n", msg["output"])
	assert.Equal(t, float64(0), msg["exit_code"])
	assert.NotEmpty(t, msg["timestamp"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "false"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "Command execution failed")
}

func TestTerminalSocket_InteractiveRelay(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)
	mockMgr.On("Get", mock.Anything, testSessionID).Return(testutil.TestSession(testSessionID), nil)
	mockMgr.On("ExecuteInteractive", mock.Anything, testSessionID, "python3").
		Return([]string{">>> "}, nil)

	conn := dialTerminal(t, s, testSessionID)
	assert.Equal(t, "connected", readMessage(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "python3"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "output", msg["type"])
	assert.Equal(t, ">>> ", msg["data"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "vim"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "input", Input: "1+1\n"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "output", msg["type"])
	assert.Equal(t, "1+1\n", msg["data"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "input", Input: "exit\n"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "interactive_end", msg["type"])
	assert.Equal(t, "python3", msg["command"])
}

func TestTerminalSocket_InteractiveStartFails(t *testing.T) {
	mockMgr := &MockSessionService{}
	s := testAPIServer(mockMgr)
	mockMgr.On("Get", mock.Anything, testSessionID).Return(testutil.TestSession(testSessionID), nil)
	mockMgr.On("ExecuteInteractive", mock.Anything, testSessionID, "top").
		Return(nil, session.ErrContainerNotRunning)
	mockMgr.On("Execute", mock.Anything, testSessionID, "pwd").Return(&session.ExecResult{
		SessionID: testSessionID,
		Command:   "pwd",
		Output:    "/home/hacker\n",
		Timestamp: time.Now().UTC(),
	}, nil)

	conn := dialTerminal(t, s, testSessionID)
	assert.Equal(t, "connected", readMessage(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "top"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "container not running")

	// The socket accepts ordinary commands again once the relay is gone.
	for attempt := 0; ; attempt++ {
		require.Less(t, attempt, 50, "relay never released the socket")
		require.NoError(t, conn.WriteJSON(clientMessage{Type: "command", Command: "pwd"}))
		if msg := readMessage(t, conn); msg["type"] == "command_result" {
			assert.Equal(t, "/home/hacker\n", msg["output"])
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
}
