package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/p-arndt/leethack/internal/runtime"
)

const timeoutMarker = "\n[Command timed out after 30 seconds]"

// Execute runs command in the session's sandbox from its tracked working
// directory. Runtime calls are detached from ctx: once started, an execution
// cannot be aborted by the caller.
func (m *Manager) Execute(ctx context.Context, id, command string) (*ExecResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := m.now()

	if err := m.touch(id); err != nil {
		return nil, err
	}

	cmd := parseCommand(command)
	if cmd.kind == commandClear {
		return m.result(id, command, "", 0, start), nil
	}

	sess, err := m.awaitRunning(id)
	if err != nil {
		return nil, err
	}

	running, err := m.runtime.IsContainerRunning(ctx, sess.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect container: %w", ErrRuntime, err)
	}
	if !running {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotRunning, sess.ContainerID)
	}

	execID, stream, err := m.startExec(ctx, sess, command)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var output string
	if IsInteractive(command) {
		output, _ = readOutput(stream, 0)
	} else {
		var timedOut bool
		output, timedOut = readOutput(stream, m.execTimeout)
		if timedOut {
			m.logger.Warn("command timed out", "session_id", id, "command", command, "timeout", m.execTimeout)
			output += timeoutMarker
		}
	}

	exitCode := -1
	status, err := m.runtime.InspectExec(ctx, execID)
	if err != nil {
		m.logger.Warn("inspect exec", "session_id", id, "exec_id", execID, "error", err)
	} else if !status.Running {
		exitCode = status.ExitCode
	}

	if cmd.kind == commandChangeDir && exitCode == 0 {
		updated, err := m.registry.Update(id, func(s *Session) error {
			if cmd.target == "" {
				s.Cwd = HomeDir
				return nil
			}
			s.Cwd = ResolvePath(s.Cwd, cmd.target)
			return nil
		})
		if err == nil {
			m.logger.Debug("working directory changed", "session_id", id, "cwd", updated.Cwd)
		}
	}

	res := m.result(id, command, output, exitCode, start)
	m.record(res)
	return res, nil
}

// ErrorResult renders an execution error as a terminal response, so that
// failures reach the user as output rather than as a transport error.
func ErrorResult(id, command string, err error) *ExecResult {
	return &ExecResult{
		SessionID: id,
		Command:   command,
		Output:    "Error: " + err.Error(),
		ExitCode:  1,
		Timestamp: time.Now().UTC(),
	}
}

func (m *Manager) result(id, command, output string, exitCode int, start time.Time) *ExecResult {
	return &ExecResult{
		SessionID:  id,
		Command:    command,
		Output:     output,
		ExitCode:   exitCode,
		DurationMs: m.now().Sub(start).Milliseconds(),
		Timestamp:  start.UTC(),
	}
}

// touch refreshes the activity stamp and rejects sessions that can never
// run a command again.
func (m *Manager) touch(id string) error {
	sess, err := m.registry.Update(id, func(s *Session) error {
		s.LastActivity = m.now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	return terminalError(sess)
}

func terminalError(sess Session) error {
	switch sess.Status {
	case StatusError:
		return fmt.Errorf("%w: %s: %s", ErrFailed, sess.ID, sess.Error)
	case StatusStopped:
		return fmt.Errorf("%w: %s", ErrStopped, sess.ID)
	}
	return nil
}

// awaitRunning polls the registry until the session has a running sandbox.
func (m *Manager) awaitRunning(id string) (Session, error) {
	for attempt := 0; ; attempt++ {
		sess, ok := m.registry.Get(id)
		if !ok {
			return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := terminalError(sess); err != nil {
			return Session{}, err
		}
		if sess.Status == StatusRunning && sess.ContainerID != "" {
			return sess, nil
		}
		if attempt >= m.pollAttempts {
			return Session{}, fmt.Errorf("%w: %s still %s after %d attempts", ErrReadinessTimeout, id, sess.Status, m.pollAttempts)
		}
		time.Sleep(m.pollInterval)
	}
}

// startExec launches command through bash on a pseudo-terminal in the
// session's working directory.
func (m *Manager) startExec(ctx context.Context, sess Session, command string) (string, runtime.ExecStream, error) {
	execID, err := m.runtime.CreateExec(ctx, sess.ContainerID, runtime.ExecSpec{
		Cmd:         []string{"bash", "-c", command},
		WorkingDir:  sess.Cwd,
		User:        execUser,
		Tty:         true,
		AttachStdin: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: create exec: %w", ErrRuntime, err)
	}
	stream, err := m.runtime.StartExec(ctx, execID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: start exec: %w", ErrRuntime, err)
	}
	return execID, stream, nil
}

// readOutput collects every frame of stream into one string. With a
// positive limit it stops waiting once the limit passes, closes the stream
// and reports timedOut; the exec process itself keeps running.
func readOutput(stream runtime.ExecStream, limit time.Duration) (output string, timedOut bool) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			f, err := stream.Recv()
			if err != nil {
				return
			}
			mu.Lock()
			buf.Write(f.Data)
			mu.Unlock()
		}
	}()

	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			timedOut = true
			stream.Close()
		}
	} else {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	return runtime.DecodeLossy(buf.Bytes()), timedOut
}
