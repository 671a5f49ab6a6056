package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testExecution(sessionID, cmd string) *Execution {
	return &Execution{
		SessionID:  sessionID,
		Command:    cmd,
		Output:     "out:" + cmd,
		ExitCode:   0,
		DurationMs: 12,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestRecordAndListExecutions(t *testing.T) {
	st := newTestStore(t)

	e := testExecution("s1", "ls -la")
	require.NoError(t, st.RecordExecution(e))
	assert.NotZero(t, e.ID)

	got, err := st.ListExecutions("s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "ls -la", got[0].Command)
	assert.Equal(t, "out:ls -la", got[0].Output)
	assert.Equal(t, int64(12), got[0].DurationMs)
}

func TestListExecutions_LimitKeepsMostRecent(t *testing.T) {
	st := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.RecordExecution(testExecution("s1", fmt.Sprintf("cmd-%d", i))))
	}

	got, err := st.ListExecutions("s1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cmd-3", got[0].Command)
	assert.Equal(t, "cmd-4", got[1].Command)
}

func TestListExecutions_Isolated(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.RecordExecution(testExecution("s1", "whoami")))
	require.NoError(t, st.RecordExecution(testExecution("s2", "id")))

	got, err := st.ListExecutions("s2", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "id", got[0].Command)

	none, err := st.ListExecutions("missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteSessionExecutions(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.RecordExecution(testExecution("s1", "a")))
	require.NoError(t, st.RecordExecution(testExecution("s1", "b")))
	require.NoError(t, st.RecordExecution(testExecution("s2", "c")))

	n, err := st.DeleteSessionExecutions("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.ListExecutions("s1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := st.ListExecutions("s2", 0)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestFileBackedStore(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, st.RecordExecution(testExecution("s1", fmt.Sprintf("cmd-%d", i))))
		}(i)
	}
	wg.Wait()

	got, err := st.ListExecutions("s1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestIsBusyLock(t *testing.T) {
	assert.False(t, isBusyLock(nil))
	assert.True(t, isBusyLock(errors.New("database is locked")))
	assert.True(t, isBusyLock(fmt.Errorf("exec: %w", errors.New("SQLITE_BUSY"))))
	assert.False(t, isBusyLock(errors.New("no such table")))
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryOnBusy(func() error {
		calls++
		return errors.New("constraint failed")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
