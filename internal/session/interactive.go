package session

import (
	"context"
	"fmt"

	"github.com/p-arndt/leethack/internal/relay"
	"github.com/p-arndt/leethack/internal/runtime"
)

// ExecuteInteractive runs command with its terminal wired to in and out.
// There is no time limit: it returns once the program's output ends, in is
// closed, or ctx is cancelled. out is always closed eventually.
func (m *Manager) ExecuteInteractive(ctx context.Context, id, command string, in <-chan string, out chan<- string) error {
	stream, err := m.openInteractive(ctx, id, command)
	if err != nil {
		close(out)
		return err
	}

	m.logger.Info("interactive command started", "session_id", id, "command", command)
	side := relay.Run(ctx, stream, in, out, m.logger.With("session_id", id))

	// Unblocks whichever relay direction is still reading the stream.
	stream.Close()
	m.logger.Info("interactive command ended", "session_id", id, "command", command, "finished", side.String())
	return nil
}

func (m *Manager) openInteractive(ctx context.Context, id, command string) (runtime.ExecStream, error) {
	rctx := context.WithoutCancel(ctx)

	if err := m.touch(id); err != nil {
		return nil, err
	}
	sess, err := m.awaitRunning(id)
	if err != nil {
		return nil, err
	}
	running, err := m.runtime.IsContainerRunning(rctx, sess.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect container: %w", ErrRuntime, err)
	}
	if !running {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotRunning, sess.ContainerID)
	}

	_, stream, err := m.startExec(rctx, sess, command)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
