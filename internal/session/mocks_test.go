package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/leethack/internal/runtime"
	"github.com/p-arndt/leethack/internal/store"
)

type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) ImageExists(ctx context.Context, image string) (bool, error) {
	args := m.Called(ctx, image)
	return args.Bool(0), args.Error(1)
}

func (m *MockRuntime) CreateContainer(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) StartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockRuntime) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	args := m.Called(ctx, containerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRuntime) CreateExec(ctx context.Context, containerID string, spec runtime.ExecSpec) (string, error) {
	args := m.Called(ctx, containerID, spec)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) StartExec(ctx context.Context, execID string) (runtime.ExecStream, error) {
	args := m.Called(ctx, execID)
	if stream := args.Get(0); stream != nil {
		return stream.(runtime.ExecStream), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRuntime) InspectExec(ctx context.Context, execID string) (runtime.ExecStatus, error) {
	args := m.Called(ctx, execID)
	return args.Get(0).(runtime.ExecStatus), args.Error(1)
}

func (m *MockRuntime) StopContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockRuntime) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	args := m.Called(ctx, containerID, force)
	return args.Error(0)
}

func (m *MockRuntime) ListManagedContainers(ctx context.Context) ([]runtime.ContainerInfo, error) {
	args := m.Called(ctx)
	if list := args.Get(0); list != nil {
		return list.([]runtime.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) RecordExecution(e *store.Execution) error {
	args := m.Called(e)
	return args.Error(0)
}

func (m *MockHistoryStore) ListExecutions(sessionID string, limit int) ([]*store.Execution, error) {
	args := m.Called(sessionID, limit)
	if list := args.Get(0); list != nil {
		return list.([]*store.Execution), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockHistoryStore) DeleteSessionExecutions(sessionID string) (int64, error) {
	args := m.Called(sessionID)
	return args.Get(0).(int64), args.Error(1)
}

var errFakeClosed = errors.New("fake stream closed")

// fakeStream serves queued frames and records input. Once the frame queue
// is closed Recv reports io.EOF; while it stays open Recv blocks until Close.
type fakeStream struct {
	frames chan runtime.Frame
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []string
	flushes int
}

func newFakeStream(chunks ...string) *fakeStream {
	s := openFakeStream(chunks...)
	close(s.frames)
	return s
}

// openFakeStream queues chunks but never signals end of output.
func openFakeStream(chunks ...string) *fakeStream {
	s := &fakeStream{
		frames: make(chan runtime.Frame, len(chunks)+1),
		closed: make(chan struct{}),
	}
	for _, c := range chunks {
		s.frames <- runtime.Frame{Kind: runtime.StreamConsole, Data: []byte(c)}
	}
	return s
}

func (s *fakeStream) Recv() (runtime.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return runtime.Frame{}, io.EOF
		}
		return f, nil
	case <-s.closed:
		return runtime.Frame{}, errFakeClosed
	}
}

func (s *fakeStream) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, errFakeClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, string(p))
	return len(p), nil
}

func (s *fakeStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeStream) input() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}
