package reaper

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockSessionSweeper mocks the SessionSweeper interface.
type MockSessionSweeper struct {
	mock.Mock
}

func (m *MockSessionSweeper) Sweep(ctx context.Context, maxIdle time.Duration) int {
	args := m.Called(ctx, maxIdle)
	return args.Int(0)
}

func (m *MockSessionSweeper) Reconcile(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}
