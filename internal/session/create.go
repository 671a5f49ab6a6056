package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p-arndt/leethack/internal/challenge"
	"github.com/p-arndt/leethack/internal/runtime"
)

// Create registers a starting session for challengeID and provisions its
// sandbox in the background. The returned snapshot is always StatusStarting;
// callers observe the outcome by polling Get.
func (m *Manager) Create(ctx context.Context, challengeID string) (*Session, error) {
	ch, err := m.catalog.Lookup(challengeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChallenge, challengeID)
	}

	now := m.now().UTC()
	sess := Session{
		ID:           uuid.NewString(),
		ChallengeID:  ch.ID,
		Status:       StatusStarting,
		CreatedAt:    now,
		LastActivity: now,
		Cwd:          HomeDir,
	}
	if !m.registry.Insert(sess) {
		return nil, fmt.Errorf("session id collision: %s", sess.ID)
	}
	m.logger.Info("session created", "session_id", sess.ID, "challenge_id", ch.ID)

	provisionCtx := context.WithoutCancel(ctx)
	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		m.provision(provisionCtx, sess.ID, ch)
	}()

	return &sess, nil
}

func (m *Manager) provision(ctx context.Context, id string, ch challenge.Config) {
	logger := m.logger.With("session_id", id, "challenge_id", ch.ID)
	start := time.Now()

	containerID, ports, err := m.startSandbox(ctx, id, ch)
	if err != nil {
		logger.Error("provision sandbox", "error", err)
		if _, uerr := m.registry.Update(id, func(s *Session) error {
			if s.Status != StatusStarting {
				return errSuperseded
			}
			s.Status = StatusError
			s.Error = err.Error()
			return nil
		}); uerr != nil {
			logger.Debug("provision: failure not recorded", "error", uerr)
		}
		return
	}

	_, err = m.registry.Update(id, func(s *Session) error {
		if s.Status != StatusStarting {
			return fmt.Errorf("%w: status is %s", errSuperseded, s.Status)
		}
		p := ports
		s.ContainerID = containerID
		s.Ports = &p
		s.Status = StatusRunning
		return nil
	})
	if err != nil {
		// Destroyed while starting: nobody else will ever remove this container.
		logger.Warn("provision: session gone, removing container", "container_id", containerID, "error", err)
		if rmErr := m.runtime.RemoveContainer(ctx, containerID, true); rmErr != nil {
			logger.Error("provision: remove abandoned container", "container_id", containerID, "error", rmErr)
		}
		return
	}

	logger.Info("session running",
		"container_id", containerID, "ssh_port", ports.SSH, "web_port", ports.Web,
		"duration", time.Since(start))
}

func (m *Manager) startSandbox(ctx context.Context, id string, ch challenge.Config) (string, PortPair, error) {
	exists, err := m.runtime.ImageExists(ctx, ch.Image)
	if err != nil {
		return "", PortPair{}, fmt.Errorf("%w: inspect image %s: %w", ErrRuntime, ch.Image, err)
	}
	if !exists {
		return "", PortPair{}, fmt.Errorf("%w: docker image '%s' not found, build it before creating sessions", ErrImageNotFound, ch.Image)
	}

	hostIP := m.cfg.Docker.HostIP
	ports, err := m.allocatePorts(hostIP)
	if err != nil {
		return "", PortPair{}, err
	}

	spec := runtime.ContainerSpec{
		Name:  containerName(id),
		Image: ch.Image,
		Env:   ch.Env,
		Ports: []runtime.PortBinding{
			{ContainerPort: ch.ExposedPorts[0], HostIP: hostIP, HostPort: ports.SSH},
			{ContainerPort: ch.ExposedPorts[1], HostIP: hostIP, HostPort: ports.Web},
		},
		MemoryBytes: m.cfg.MemoryLimitBytes(),
		CPUShares:   m.cfg.Docker.CPUShares,
		WorkingDir:  HomeDir,
		Labels: map[string]string{
			runtime.LabelSessionID:   id,
			runtime.LabelChallengeID: ch.ID,
		},
	}

	containerID, err := m.runtime.CreateContainer(ctx, spec)
	if err != nil {
		return "", PortPair{}, fmt.Errorf("%w: create container: %w", ErrRuntime, err)
	}

	if err := m.runtime.StartContainer(ctx, containerID); err != nil {
		if rmErr := m.runtime.RemoveContainer(ctx, containerID, true); rmErr != nil {
			m.logger.Warn("remove unstarted container", "session_id", id, "container_id", containerID, "error", rmErr)
		}
		return "", PortPair{}, fmt.Errorf("%w: start container: %w", ErrRuntime, err)
	}

	// Give the sandbox's services time to come up.
	if m.startupGrace > 0 {
		time.Sleep(m.startupGrace)
	}

	return containerID, ports, nil
}
