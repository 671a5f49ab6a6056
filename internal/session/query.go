package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/p-arndt/leethack/internal/store"
)

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	sess, ok := m.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &sess, nil
}

// List returns every session, oldest first.
func (m *Manager) List(ctx context.Context) ([]Session, error) {
	sessions := m.registry.Snapshot()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Destroy removes the session and tears down its container. A failed stop
// is ignored; a failed remove is returned, but the session is gone either way.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	sess, ok := m.registry.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.teardown(ctx, sess)
}

// teardown releases everything owned by a session already taken out of the
// registry.
func (m *Manager) teardown(ctx context.Context, sess Session) error {
	m.forgetHistory(sess.ID)

	if sess.ContainerID == "" {
		m.logger.Info("session destroyed", "session_id", sess.ID, "status", sess.Status)
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if err := m.runtime.StopContainer(ctx, sess.ContainerID); err != nil {
		m.logger.Debug("stop container", "session_id", sess.ID, "container_id", sess.ContainerID, "error", err)
	}
	if err := m.runtime.RemoveContainer(ctx, sess.ContainerID, true); err != nil {
		return fmt.Errorf("%w: remove container %s: %w", ErrRuntime, sess.ContainerID, err)
	}

	m.logger.Info("session destroyed", "session_id", sess.ID, "container_id", sess.ContainerID)
	return nil
}

// Sweep destroys sessions idle for longer than maxIdle and returns how many
// it removed. Idleness is rechecked at removal, so a session touched after
// the scan survives.
func (m *Manager) Sweep(ctx context.Context, maxIdle time.Duration) int {
	now := m.now()
	idle := func(s Session) bool { return now.Sub(s.LastActivity) > maxIdle }

	removed := 0
	for _, snap := range m.registry.Snapshot() {
		if !idle(snap) {
			continue
		}
		sess, ok := m.registry.RemoveIf(snap.ID, idle)
		if !ok {
			// destroyed or touched concurrently
			continue
		}
		removed++
		m.logger.Info("sweeping idle session", "session_id", sess.ID, "last_activity", sess.LastActivity)
		if err := m.teardown(ctx, sess); err != nil {
			m.logger.Error("sweep: destroy session", "session_id", sess.ID, "error", err)
		}
	}
	if removed > 0 {
		m.logger.Info("sweep: removed idle sessions", "count", removed)
	}
	return removed
}

// Reconcile marks running sessions whose container died out of band as
// stopped and removes the dead container. It returns the number of sessions
// stopped.
func (m *Manager) Reconcile(ctx context.Context) int {
	stopped := 0
	for _, sess := range m.registry.Snapshot() {
		if sess.Status != StatusRunning {
			continue
		}
		running, err := m.runtime.IsContainerRunning(ctx, sess.ContainerID)
		if err != nil {
			m.logger.Warn("reconcile: error checking container status",
				"session_id", sess.ID, "container_id", sess.ContainerID, "error", err)
			continue
		}
		if running {
			continue
		}

		_, err = m.registry.Update(sess.ID, func(s *Session) error {
			if s.Status != StatusRunning || s.ContainerID != sess.ContainerID {
				return errSuperseded
			}
			s.Status = StatusStopped
			s.ContainerID = ""
			return nil
		})
		if err != nil {
			continue
		}
		stopped++
		m.logger.Warn("reconcile: container not running, session stopped",
			"session_id", sess.ID, "container_id", sess.ContainerID)

		if err := m.runtime.RemoveContainer(ctx, sess.ContainerID, true); err != nil {
			m.logger.Error("reconcile: remove container", "session_id", sess.ID, "error", err)
		}
	}
	return stopped
}

// PurgeOrphans removes managed containers that no live session owns, such as
// those left behind by a previous process.
func (m *Manager) PurgeOrphans(ctx context.Context) (int, error) {
	containers, err := m.runtime.ListManagedContainers(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list containers: %w", ErrRuntime, err)
	}

	purged := 0
	for _, c := range containers {
		if sess, ok := m.registry.Get(c.SessionID); ok && sess.ContainerID == c.ID {
			continue
		}
		if err := m.runtime.RemoveContainer(ctx, c.ID, true); err != nil {
			m.logger.Error("purge: remove orphan container", "container_id", c.ID, "session_id", c.SessionID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		m.logger.Info("purged orphan containers", "count", purged)
	}
	return purged, nil
}

// Shutdown waits for provisioning to settle, then destroys every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.Wait()
	for _, sess := range m.registry.Snapshot() {
		if err := m.Destroy(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Error("shutdown: destroy session", "session_id", sess.ID, "error", err)
		}
	}
}

// History returns up to limit of the session's most recent commands.
func (m *Manager) History(ctx context.Context, id string, limit int) ([]*store.Execution, error) {
	if _, ok := m.registry.Get(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.history == nil {
		return []*store.Execution{}, nil
	}
	entries, err := m.history.ListExecutions(id, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if entries == nil {
		entries = []*store.Execution{}
	}
	return entries, nil
}

func (m *Manager) record(res *ExecResult) {
	if m.history == nil {
		return
	}
	err := m.history.RecordExecution(&store.Execution{
		SessionID:  res.SessionID,
		Command:    res.Command,
		Output:     res.Output,
		ExitCode:   res.ExitCode,
		DurationMs: res.DurationMs,
		CreatedAt:  res.Timestamp,
	})
	if err != nil {
		m.logger.Warn("record execution", "session_id", res.SessionID, "error", err)
	}
}

func (m *Manager) forgetHistory(id string) {
	if m.history == nil {
		return
	}
	if _, err := m.history.DeleteSessionExecutions(id); err != nil {
		m.logger.Warn("delete execution history", "session_id", id, "error", err)
	}
}
