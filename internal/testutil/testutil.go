package testutil

import (
	"testing"
	"time"

	"github.com/p-arndt/leethack/internal/config"
	"github.com/p-arndt/leethack/internal/session"
	"github.com/p-arndt/leethack/internal/store"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.HistoryDBPath = ":memory:"
	cfg.LogLevel = "error"
	return cfg
}

// TestSession returns a running session with a container and ports attached.
func TestSession(id string) *session.Session {
	now := time.Now().UTC()
	return &session.Session{
		ID:           id,
		ChallengeID:  "sql-injection",
		ContainerID:  "ctr-" + id,
		Status:       session.StatusRunning,
		CreatedAt:    now,
		LastActivity: now,
		Ports:        &session.PortPair{SSH: 40022, Web: 40080},
		Cwd:          session.HomeDir,
	}
}

// NewTestStore creates an in-memory SQLite history journal for testing.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
