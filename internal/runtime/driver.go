package runtime

import (
	"context"
	"strings"
)

// Labels stamped on every sandbox container.
const (
	LabelManaged     = "leethack.managed"
	LabelSessionID   = "leethack.session_id"
	LabelChallengeID = "leethack.challenge_id"
)

// PortBinding publishes one container port on the host.
type PortBinding struct {
	ContainerPort int
	HostIP        string
	HostPort      int
}

type ContainerSpec struct {
	Name        string
	Image       string
	Env         map[string]string
	Ports       []PortBinding
	MemoryBytes int64
	CPUShares   int64
	WorkingDir  string
	Labels      map[string]string
}

type ExecSpec struct {
	Cmd         []string
	WorkingDir  string
	User        string
	Tty         bool
	AttachStdin bool
}

// StreamKind tags where a frame of exec output came from.
type StreamKind int

const (
	StreamStdout StreamKind = iota
	StreamStderr
	StreamStdin
	// StreamConsole carries raw pseudo-terminal output, where stdout and
	// stderr are already merged by the terminal.
	StreamConsole
)

func (k StreamKind) String() string {
	switch k {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	case StreamStdin:
		return "stdin"
	case StreamConsole:
		return "console"
	default:
		return "unknown"
	}
}

type Frame struct {
	Kind StreamKind
	Data []byte
}

// Text decodes the frame payload, replacing invalid UTF-8 with U+FFFD.
func (f Frame) Text() string {
	return DecodeLossy(f.Data)
}

// DecodeLossy converts raw terminal bytes to a string without ever failing.
func DecodeLossy(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// ExecStream is the attached duplex stream of a started exec process.
// Recv returns io.EOF once the process output is exhausted.
type ExecStream interface {
	Recv() (Frame, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// ExecStatus is the state reported for an exec process. ExitCode is only
// meaningful when Running is false.
type ExecStatus struct {
	ExitCode int
	Running  bool
}

// ContainerInfo identifies a sandbox container owned by this process.
type ContainerInfo struct {
	ID        string
	SessionID string
}

// Driver is the container runtime surface consumed by the session engine.
type Driver interface {
	ImageExists(ctx context.Context, image string) (bool, error)
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)
	CreateExec(ctx context.Context, containerID string, spec ExecSpec) (string, error)
	StartExec(ctx context.Context, execID string) (ExecStream, error)
	InspectExec(ctx context.Context, execID string) (ExecStatus, error)
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string, force bool) error
	ListManagedContainers(ctx context.Context) ([]ContainerInfo, error)
}
