package session

import "time"

// HomeDir is the sandbox user's home and the initial working directory.
const HomeDir = "/home/hacker"

type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// PortPair holds the host ports published for a sandbox.
type PortPair struct {
	SSH int `json:"ssh"`
	Web int `json:"web"`
}

// Session is a learner's shell bound to one sandbox container.
//
// ContainerID is non-empty exactly when Status is StatusRunning. Error is
// only set when Status is StatusError.
type Session struct {
	ID           string    `json:"id"`
	ChallengeID  string    `json:"challenge_id"`
	ContainerID  string    `json:"container_id,omitempty"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Ports        *PortPair `json:"ports,omitempty"`
	Cwd          string    `json:"cwd"`
}

func (s Session) clone() Session {
	if s.Ports != nil {
		p := *s.Ports
		s.Ports = &p
	}
	return s
}

// ExecResult is the outcome of one command run in a session.
type ExecResult struct {
	SessionID  string    `json:"session_id"`
	Command    string    `json:"command"`
	Output     string    `json:"output"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
