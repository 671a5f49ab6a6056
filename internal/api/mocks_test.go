package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/leethack/internal/challenge"
	"github.com/p-arndt/leethack/internal/session"
	"github.com/p-arndt/leethack/internal/store"
)

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(ctx context.Context, challengeID string) (*session.Session, error) {
	args := m.Called(ctx, challengeID)
	if s := args.Get(0); s != nil {
		return s.(*session.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*session.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) List(ctx context.Context) ([]session.Session, error) {
	args := m.Called(ctx)
	if sessions := args.Get(0); sessions != nil {
		return sessions.([]session.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Destroy(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionService) Execute(ctx context.Context, id, command string) (*session.ExecResult, error) {
	args := m.Called(ctx, id, command)
	if result := args.Get(0); result != nil {
		return result.(*session.ExecResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// ExecuteInteractive replays the mocked output chunks, then echoes every
// input chunk back as output until in is closed.
func (m *MockSessionService) ExecuteInteractive(ctx context.Context, id, command string, in <-chan string, out chan<- string) error {
	args := m.Called(ctx, id, command)
	defer close(out)
	if err := args.Error(1); err != nil {
		return err
	}
	if chunks, ok := args.Get(0).([]string); ok {
		for _, c := range chunks {
			out <- c
		}
	}
	for chunk := range in {
		if chunk == "exit\n" {
			return nil
		}
		out <- chunk
	}
	return nil
}

func (m *MockSessionService) History(ctx context.Context, id string, limit int) ([]*store.Execution, error) {
	args := m.Called(ctx, id, limit)
	if entries := args.Get(0); entries != nil {
		return entries.([]*store.Execution), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionService) Challenges() []challenge.Config {
	args := m.Called()
	return args.Get(0).([]challenge.Config)
}
